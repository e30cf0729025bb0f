// Package apitest runs an in-memory stand-in for the upstream consultation
// API so that transport, services and handlers can be exercised end to end.
package apitest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/consult/consult/internal/platform/apiclient"
)

// SlotDuration is the server-side convention used to derive endAt.
const SlotDuration = 30 * time.Minute

// DefaultCapacity is assigned to slots created without a capacity.
const DefaultCapacity = 3

// Slot is the upstream slot document.
type Slot struct {
	ID          string `json:"id"`
	CounselorID string `json:"counselorId"`
	StartAt     string `json:"startAt"`
	EndAt       string `json:"endAt"`
	Capacity    int    `json:"capacity"`
	BookedCount int    `json:"bookedCount"`
	Status      string `json:"status"`
}

// Applicant is the upstream applicant document.
type Applicant struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

// Booking is the upstream booking document as listed per slot.
type Booking struct {
	ID        string    `json:"id"`
	Applicant Applicant `json:"applicant"`
	CreatedAt string    `json:"createdAt"`
}

// Session is the upstream consultation record.
type Session struct {
	ID        string         `json:"id"`
	BookingID string         `json:"bookingId"`
	Notes     map[string]any `json:"notes"`
	Outcome   string         `json:"outcome"`
	StartedAt string         `json:"startedAt,omitempty"`
	EndedAt   string         `json:"endedAt,omitempty"`
}

// Token is a reservation link credential.
type Token struct {
	Value       string
	CounselorID string
	ExpiresAt   time.Time
	// MaxUses of zero means the token is only limited by its expiry.
	MaxUses int
	uses    int
}

type user struct {
	id       string
	email    string
	name     string
	password string
}

// Server is the fake upstream API.
type Server struct {
	*httptest.Server

	// LinkBase, when set, is used to build the "link" field of created
	// email links.
	LinkBase string
	// LegacyVerify makes the verify endpoint answer with the legacy
	// {valid, slots, message} shape.
	LegacyVerify bool

	mu          sync.Mutex
	slots       map[string]*Slot
	bookings    map[string][]Booking // slot id -> bookings
	bookingSlot map[string]string    // booking id -> slot id
	sessions    map[string]Session   // booking id -> session
	tokens      map[string]*Token
	users       map[string]user
	revoked     map[string]bool
	calls       []string
	key         []byte
	now         func() time.Time
}

// New starts a fake upstream that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		slots:       make(map[string]*Slot),
		bookings:    make(map[string][]Booking),
		bookingSlot: make(map[string]string),
		sessions:    make(map[string]Session),
		tokens:      make(map[string]*Token),
		users:       make(map[string]user),
		revoked:     make(map[string]bool),
		key:         []byte("apitest-signing-key"),
		now:         time.Now,
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

// Client returns an apiclient.Client pointed at the fake.
func (s *Server) Client() *apiclient.Client {
	return apiclient.New(s.URL, 5*time.Second, zerolog.Nop())
}

// AddUser registers an admin account.
func (s *Server) AddUser(email, password, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[email] = user{id: uuid.NewString(), email: email, name: name, password: password}
}

// AddSlot stores a slot, filling in id, endAt, capacity and status when they
// are empty. It returns the stored slot.
func (s *Server) AddSlot(sl Slot) Slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sl.ID == "" {
		sl.ID = uuid.NewString()
	}
	if sl.EndAt == "" {
		sl.EndAt = deriveEnd(sl.StartAt)
	}
	if sl.Capacity == 0 {
		sl.Capacity = DefaultCapacity
	}
	if sl.Status == "" {
		sl.Status = "OPEN"
	}
	stored := sl
	s.slots[sl.ID] = &stored
	return stored
}

// AddBooking attaches a booking to a slot without touching its counters.
func (s *Server) AddBooking(slotID string, b Booking) Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt == "" {
		b.CreatedAt = s.now().UTC().Format(time.RFC3339)
	}
	s.bookings[slotID] = append(s.bookings[slotID], b)
	s.bookingSlot[b.ID] = slotID
	return b
}

// AddToken registers a reservation link token.
func (s *Server) AddToken(tok Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := tok
	s.tokens[tok.Value] = &t
}

// RevokeAccessTokens makes every access token issued so far fail with 401.
func (s *Server) RevokeAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked["*"] = true
}

// Slot returns the stored slot with id.
func (s *Server) Slot(id string) (Slot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[id]
	if !ok {
		return Slot{}, false
	}
	return *sl, true
}

// Bookings returns the bookings of a slot.
func (s *Server) Bookings(slotID string) []Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Booking(nil), s.bookings[slotID]...)
}

// Calls returns how many requests matched method and path prefix.
func (s *Server) Calls(method, pathPrefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if strings.HasPrefix(c, method+" "+pathPrefix) {
			n++
		}
	}
	return n
}

// IssueAccessToken mints a valid access token for email.
func (s *Server) IssueAccessToken(email string) string {
	s.mu.Lock()
	u, ok := s.users[email]
	s.mu.Unlock()
	if !ok {
		u = user{id: uuid.NewString(), email: email}
	}
	tok, _ := s.sign(u)
	return tok
}

func (s *Server) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			s.mu.Lock()
			s.calls = append(s.calls, c.Request().Method+" "+c.Request().URL.Path)
			s.mu.Unlock()
			return next(c)
		}
	})

	e.POST("/auth/login", s.login)

	admin := e.Group("/admin", s.requireBearer)
	admin.GET("/slots", s.listSlots)
	admin.POST("/slots", s.createSlot)
	admin.GET("/slots/:id", s.getSlot)
	admin.PATCH("/slots/:id", s.updateSlot)
	admin.DELETE("/slots/:id", s.deleteSlot)
	admin.GET("/slots/:id/bookings", s.listBookings)
	admin.POST("/email-links", s.createEmailLink)
	admin.GET("/bookings/:id/session", s.getSession)
	admin.POST("/bookings/:id/session", s.saveSession)

	e.GET("/public/reserve", s.verify)
	e.POST("/public/bookings", s.reserve)
	return e
}

func message(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"message": msg})
}

func (s *Server) sign(u user) (string, error) {
	claims := jwt.MapClaims{
		"sub":   u.id,
		"email": u.email,
		"name":  u.name,
		"iat":   s.now().Unix(),
		"exp":   s.now().Add(time.Hour).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

func (s *Server) login(c echo.Context) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return message(c, http.StatusBadRequest, "invalid body")
	}
	s.mu.Lock()
	u, ok := s.users[req.Email]
	s.mu.Unlock()
	if !ok || u.password != req.Password {
		return message(c, http.StatusUnauthorized, "이메일 또는 비밀번호가 올바르지 않습니다")
	}
	tok, err := s.sign(u)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]string{"access_token": tok})
}

func (s *Server) requireBearer(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw := strings.TrimPrefix(c.Request().Header.Get("Authorization"), "Bearer ")
		if raw == "" {
			return message(c, http.StatusUnauthorized, "Unauthorized")
		}
		_, err := jwt.Parse(raw, func(*jwt.Token) (any, error) { return s.key, nil },
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		s.mu.Lock()
		revoked := s.revoked["*"]
		s.mu.Unlock()
		if err != nil || revoked {
			return message(c, http.StatusUnauthorized, "Unauthorized")
		}
		return next(c)
	}
}

func (s *Server) sortedSlots(date string) []Slot {
	out := make([]Slot, 0, len(s.slots))
	for _, sl := range s.slots {
		if date != "" && !strings.HasPrefix(sl.StartAt, date) {
			continue
		}
		out = append(out, *sl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt < out[j].StartAt })
	return out
}

func (s *Server) listSlots(c echo.Context) error {
	if c.QueryParam("includeBookings") == "" {
		return c.JSON(http.StatusBadRequest, map[string][]string{"message": {"includeBookings must be a boolean value"}})
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return c.JSON(http.StatusOK, s.sortedSlots(""))
}

func (s *Server) getSlot(c echo.Context) error {
	sl, ok := s.Slot(c.Param("id"))
	if !ok {
		return message(c, http.StatusNotFound, "슬롯을 찾을 수 없습니다")
	}
	return c.JSON(http.StatusOK, sl)
}

type slotWrite struct {
	StartAt *string `json:"startAt"`
	Status  *string `json:"status"`
}

func (s *Server) createSlot(c echo.Context) error {
	var req slotWrite
	if err := c.Bind(&req); err != nil || req.StartAt == nil {
		return c.JSON(http.StatusBadRequest, map[string][]string{"message": {"startAt must be a valid ISO 8601 date string"}})
	}
	if _, err := time.Parse(time.RFC3339, *req.StartAt); err != nil {
		return c.JSON(http.StatusBadRequest, map[string][]string{"message": {"startAt must be a valid ISO 8601 date string"}})
	}

	s.mu.Lock()
	for _, sl := range s.slots {
		if sl.StartAt == *req.StartAt {
			s.mu.Unlock()
			return message(c, http.StatusConflict, "이미 같은 시간에 슬롯이 있습니다")
		}
	}
	s.mu.Unlock()

	status := "OPEN"
	if req.Status != nil {
		status = *req.Status
	}
	sl := s.AddSlot(Slot{StartAt: *req.StartAt, Status: status, CounselorID: "counselor-1"})
	return c.JSON(http.StatusCreated, map[string]any{"message": "슬롯이 생성되었습니다", "slot": sl})
}

func (s *Server) updateSlot(c echo.Context) error {
	var req slotWrite
	if err := c.Bind(&req); err != nil {
		return message(c, http.StatusBadRequest, "invalid body")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[c.Param("id")]
	if !ok {
		return message(c, http.StatusNotFound, "슬롯을 찾을 수 없습니다")
	}
	if req.StartAt != nil {
		if _, err := time.Parse(time.RFC3339, *req.StartAt); err != nil {
			return c.JSON(http.StatusBadRequest, map[string][]string{"message": {"startAt must be a valid ISO 8601 date string"}})
		}
		sl.StartAt = *req.StartAt
		sl.EndAt = deriveEnd(sl.StartAt)
	}
	if req.Status != nil {
		sl.Status = *req.Status
	}
	return c.JSON(http.StatusOK, *sl)
}

func (s *Server) deleteSlot(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := c.Param("id")
	if _, ok := s.slots[id]; !ok {
		return message(c, http.StatusNotFound, "슬롯을 찾을 수 없습니다")
	}
	delete(s.slots, id)
	delete(s.bookings, id)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listBookings(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := c.Param("id")
	if _, ok := s.slots[id]; !ok {
		return message(c, http.StatusNotFound, "슬롯을 찾을 수 없습니다")
	}
	out := s.bookings[id]
	if out == nil {
		out = []Booking{}
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) createEmailLink(c echo.Context) error {
	var req struct {
		CounselorID    string `json:"counselorId"`
		ExpiresInHours int    `json:"expiresInHours"`
	}
	_ = c.Bind(&req)
	if req.ExpiresInHours <= 0 {
		req.ExpiresInHours = 72
	}
	tok := Token{
		Value:       strings.ReplaceAll(uuid.NewString(), "-", ""),
		CounselorID: req.CounselorID,
		ExpiresAt:   s.now().Add(time.Duration(req.ExpiresInHours) * time.Hour),
	}
	s.AddToken(tok)

	resp := map[string]string{
		"token":     tok.Value,
		"expiresAt": tok.ExpiresAt.UTC().Format(time.RFC3339),
	}
	if s.LinkBase != "" {
		resp["link"] = s.LinkBase + "/public/reserve?token=" + tok.Value
	}
	return c.JSON(http.StatusCreated, resp)
}

func (s *Server) getSession(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[c.Param("id")]
	if !ok {
		return message(c, http.StatusNotFound, "상담 기록이 없습니다")
	}
	return c.JSON(http.StatusOK, sess)
}

func (s *Server) saveSession(c echo.Context) error {
	var req struct {
		Notes   map[string]any `json:"notes"`
		Outcome string         `json:"outcome"`
	}
	if err := c.Bind(&req); err != nil {
		return message(c, http.StatusBadRequest, "invalid body")
	}
	switch req.Outcome {
	case "COMPLETED", "NO_SHOW", "CANCELLED", "FOLLOW_UP":
	default:
		return c.JSON(http.StatusBadRequest, map[string][]string{"message": {"outcome must be one of the following values: COMPLETED, NO_SHOW, CANCELLED, FOLLOW_UP"}})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := c.Param("id")
	if _, ok := s.bookingSlot[id]; !ok {
		return message(c, http.StatusNotFound, "예약을 찾을 수 없습니다")
	}
	if _, exists := s.sessions[id]; exists {
		return message(c, http.StatusConflict, "이미 상담 기록이 있습니다")
	}
	if req.Notes == nil {
		req.Notes = map[string]any{}
	}
	sess := Session{
		ID:        uuid.NewString(),
		BookingID: id,
		Notes:     req.Notes,
		Outcome:   req.Outcome,
		EndedAt:   s.now().UTC().Format(time.RFC3339),
	}
	s.sessions[id] = sess
	return c.JSON(http.StatusCreated, sess)
}

// usable reports whether tok can still be used. Callers hold s.mu.
func (s *Server) usable(value string) (*Token, bool) {
	tok, ok := s.tokens[value]
	if !ok {
		return nil, false
	}
	if !tok.ExpiresAt.IsZero() && s.now().After(tok.ExpiresAt) {
		return nil, false
	}
	if tok.MaxUses > 0 && tok.uses >= tok.MaxUses {
		return nil, false
	}
	return tok, true
}

func (s *Server) verify(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.usable(c.QueryParam("token"))
	if !ok {
		if s.LegacyVerify {
			return c.JSON(http.StatusOK, map[string]any{"valid": false, "message": "유효하지 않은 링크입니다"})
		}
		return message(c, http.StatusGone, "유효하지 않은 링크입니다")
	}
	slots := s.sortedSlots(c.QueryParam("date"))
	if s.LegacyVerify {
		return c.JSON(http.StatusOK, map[string]any{"valid": true, "slots": slots})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"counselor": map[string]string{"id": tok.CounselorID},
		"slots":     slots,
	})
}

func (s *Server) reserve(c echo.Context) error {
	var req struct {
		Token  string `json:"token"`
		SlotID string `json:"slotId"`
		Email  string `json:"email"`
		Name   string `json:"name"`
		Phone  string `json:"phone"`
	}
	if err := c.Bind(&req); err != nil {
		return message(c, http.StatusBadRequest, "invalid body")
	}
	if req.Email == "" || req.Name == "" {
		return c.JSON(http.StatusBadRequest, map[string][]string{"message": {"name should not be empty", "email must be an email"}})
	}

	s.mu.Lock()
	tok, ok := s.usable(req.Token)
	if !ok {
		s.mu.Unlock()
		return message(c, http.StatusBadRequest, "유효하지 않은 링크입니다")
	}
	sl, ok := s.slots[req.SlotID]
	if !ok {
		s.mu.Unlock()
		return message(c, http.StatusNotFound, "슬롯을 찾을 수 없습니다")
	}
	if sl.Status != "OPEN" {
		s.mu.Unlock()
		return message(c, http.StatusConflict, "예약할 수 없는 슬롯입니다")
	}
	if sl.BookedCount >= sl.Capacity {
		s.mu.Unlock()
		return message(c, http.StatusConflict, "정원이 마감되었습니다")
	}
	for _, b := range s.bookings[sl.ID] {
		if b.Applicant.Email == req.Email {
			s.mu.Unlock()
			return message(c, http.StatusConflict, "이미 예약된 시간입니다")
		}
	}
	sl.BookedCount++
	tok.uses++
	s.mu.Unlock()

	b := s.AddBooking(sl.ID, Booking{Applicant: Applicant{
		ID:    uuid.NewString(),
		Email: req.Email,
		Name:  req.Name,
		Phone: req.Phone,
	}})
	return c.JSON(http.StatusCreated, map[string]string{"message": "예약이 완료되었습니다", "bookingId": b.ID})
}

func deriveEnd(startAt string) string {
	t, err := time.Parse(time.RFC3339, startAt)
	if err != nil {
		return ""
	}
	return t.Add(SlotDuration).Format("2006-01-02T15:04:05-07:00")
}

// KST formats a date and clock in the fixed +09:00 offset.
func KST(date, hhmm string) string {
	return fmt.Sprintf("%sT%s:00+09:00", date, hhmm)
}
