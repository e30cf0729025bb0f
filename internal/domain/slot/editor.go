package slot

import (
	"context"
	"fmt"

	"github.com/consult/consult/internal/platform/validation"
	"github.com/consult/consult/pkg/kst"
)

// DefaultStartTime seeds the create form.
const DefaultStartTime = "09:00"

// EditorMode is the state of the slot editor.
type EditorMode string

const (
	EditorClosed   EditorMode = "closed"
	EditorCreating EditorMode = "creating"
	EditorEditing  EditorMode = "editing"
)

// Editor holds the state of the admin slot modal: which slot is being
// edited and the form contents. A failed submit keeps the editor open with
// the form intact.
type Editor struct {
	svc    *Service
	mode   EditorMode
	target *Slot
	form   Form
}

func NewEditor(svc *Service) *Editor {
	return &Editor{svc: svc, mode: EditorClosed}
}

// OpenCreate opens the editor for a new slot on dateFilter.
func (e *Editor) OpenCreate(dateFilter string) Form {
	e.mode = EditorCreating
	e.target = nil
	e.form = Form{Date: dateFilter, StartTime: DefaultStartTime}
	return e.form
}

// OpenEdit opens the editor on an existing slot.
func (e *Editor) OpenEdit(s Slot) Form {
	date, start := kst.Decode(s.StartAt)
	e.mode = EditorEditing
	e.target = &s
	e.form = Form{Date: date, StartTime: start}
	return e.form
}

// Close discards the editor state.
func (e *Editor) Close() {
	e.mode = EditorClosed
	e.target = nil
	e.form = Form{}
}

func (e *Editor) Mode() EditorMode { return e.mode }

func (e *Editor) Form() Form { return e.form }

// Target returns the slot being edited.
func (e *Editor) Target() (Slot, bool) {
	if e.target == nil {
		return Slot{}, false
	}
	return *e.target, true
}

// Submit validates form and creates or updates the slot depending on the
// editor mode. On success the editor is closed and reset.
func (e *Editor) Submit(ctx context.Context, form Form) (*Slot, error) {
	e.form = form
	if err := validation.Struct(form); err != nil {
		return nil, err
	}

	var (
		out *Slot
		err error
	)
	switch e.mode {
	case EditorCreating:
		out, err = e.svc.Create(ctx, form.StartAt(), StatusOpen)
	case EditorEditing:
		startAt, status := form.StartAt(), StatusOpen
		out, err = e.svc.Update(ctx, e.target.ID, Patch{StartAt: &startAt, Status: &status})
	default:
		return nil, fmt.Errorf("slot editor is closed")
	}
	if err != nil {
		return nil, err
	}
	e.Close()
	return out, nil
}
