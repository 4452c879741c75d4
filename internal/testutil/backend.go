package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"train-console/internal/domain"
)

const (
	fakeSigningKey = "fake-backend-signing-key"
	seatsPerRow    = 6
)

// RecordedRequest is one call received by the fake backend
type RecordedRequest struct {
	Method        string
	Path          string
	Authorization string
	RequestID     string
	Body          []byte
}

type fakeUser struct {
	id       string
	username string
	email    string
	password string
	isAdmin  bool
}

type fakeTrain struct {
	train domain.Train
	seats map[int]domain.SeatStatus
}

type fakeBooking struct {
	id          int
	trainID     string
	userID      string
	seatNumbers []int
	totalPrice  float64
	createdAt   time.Time
}

// FakeBackend is an in-memory reservation backend served over HTTP. It
// speaks the same routes, auth headers and error bodies as the real one.
type FakeBackend struct {
	Server   *httptest.Server
	AdminKey string
	TokenTTL time.Duration

	mu           sync.Mutex
	users        map[string]*fakeUser
	trains       map[string]*fakeTrain
	bookings     []*fakeBooking
	nextUserID   int
	nextTrain    int
	nextBooking  int
	pricePerSeat *float64
	requests     []RecordedRequest
	bookHandler  http.HandlerFunc
	seatsHandler http.HandlerFunc
	omitAdminKey bool
}

// NewFakeBackend starts a fake backend that is closed with the test
func NewFakeBackend(t *testing.T) *FakeBackend {
	t.Helper()

	f := &FakeBackend{
		AdminKey:    "test-admin-key",
		TokenTTL:    time.Hour,
		users:       make(map[string]*fakeUser),
		trains:      make(map[string]*fakeTrain),
		nextUserID:  1,
		nextTrain:   100,
		nextBooking: 1,
	}
	f.Server = httptest.NewServer(f.router())
	t.Cleanup(f.Server.Close)

	return f
}

// URL returns the API base URL
func (f *FakeBackend) URL() string {
	return f.Server.URL + "/api"
}

func (f *FakeBackend) router() http.Handler {
	r := chi.NewRouter()
	r.Use(f.record)

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", f.login)
		r.Post("/signup", f.signup)

		r.Group(func(r chi.Router) {
			r.Use(f.requireAdminKey)
			r.Post("/trains/create", f.createTrain)
			r.Get("/admin/trains", f.adminTrains)
			r.Delete("/admin/trains/{trainID}", f.adminDeleteTrain)
		})

		r.Group(func(r chi.Router) {
			r.Use(f.requireBearer)
			r.Get("/trains/availability", f.availability)
			r.Get("/trains/{trainID}", f.trainDetail)
			r.Get("/trains/{trainID}/seats", f.seats)
			r.Post("/trains/{trainID}/book", f.book)
			r.Get("/trains/{trainID}/booking/{bookingID}", f.bookingDetail)
			r.Get("/user/bookings", f.userBookings)
		})
	})

	return r
}

// Fixture setup

// AddUser registers an account and returns its id
func (f *FakeBackend) AddUser(username, password string, admin bool) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addUserLocked(username, username+"@example.com", password, admin)
}

func (f *FakeBackend) addUserLocked(username, email, password string, admin bool) string {
	id := strconv.Itoa(f.nextUserID)
	f.nextUserID++
	f.users[username] = &fakeUser{
		id:       id,
		username: username,
		email:    email,
		password: password,
		isAdmin:  admin,
	}
	return id
}

// AddTrain adds a train with all seats AVAILABLE
func (f *FakeBackend) AddTrain(trainID, name, source, destination string, seatCount int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addTrainLocked(trainID, name, source, destination, seatCount, "08:00:00", "20:00:00")
}

func (f *FakeBackend) addTrainLocked(trainID, name, source, destination string, seatCount int, departure, arrival string) {
	seats := make(map[int]domain.SeatStatus, seatCount)
	for n := 1; n <= seatCount; n++ {
		seats[n] = domain.SeatAvailable
	}
	f.trains[trainID] = &fakeTrain{
		train: domain.Train{
			TrainID:       trainID,
			Name:          name,
			Source:        source,
			Destination:   destination,
			TotalSeats:    seatCount,
			DepartureTime: departure,
			ArrivalTime:   arrival,
		},
		seats: seats,
	}
}

// SetSeatStatus overrides the status of one seat
func (f *FakeBackend) SetSeatStatus(trainID string, seat int, status domain.SeatStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if train, ok := f.trains[trainID]; ok {
		train.seats[seat] = status
	}
}

// SetPricePerSeat makes the seat matrix report a unit price
func (f *FakeBackend) SetPricePerSeat(price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pricePerSeat = &price
}

// SetBookHandler replaces the booking endpoint
func (f *FakeBackend) SetBookHandler(h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bookHandler = h
}

// SetSeatsHandler replaces the seat matrix endpoint
func (f *FakeBackend) SetSeatsHandler(h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seatsHandler = h
}

// OmitAdminKey makes admin logins come back without an admin api key
func (f *FakeBackend) OmitAdminKey() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.omitAdminKey = true
}

// Requests returns the recorded calls whose path starts with prefix
func (f *FakeBackend) Requests(prefix string) []RecordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []RecordedRequest
	for _, r := range f.requests {
		if strings.HasPrefix(r.Path, prefix) {
			out = append(out, r)
		}
	}
	return out
}

// Count returns how many calls matched method and exact path
func (f *FakeBackend) Count(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, r := range f.requests {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// IssueToken signs a token for userID that expires at exp
func IssueToken(userID string, exp time.Time) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"token_type": "access",
		"user_id":    userID,
		"exp":        exp.Unix(),
		"iat":        time.Now().Unix(),
	})
	signed, err := token.SignedString([]byte(fakeSigningKey))
	if err != nil {
		panic(fmt.Sprintf("sign token: %v", err))
	}
	return signed
}

// Middleware

func (f *FakeBackend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			body, _ = readAll(r)
		}
		f.mu.Lock()
		f.requests = append(f.requests, RecordedRequest{
			Method:        r.Method,
			Path:          strings.TrimPrefix(r.URL.Path, "/api"),
			Authorization: r.Header.Get("Authorization"),
			RequestID:     r.Header.Get("X-Request-ID"),
			Body:          body,
		})
		f.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

type userKey struct{}

func (f *FakeBackend) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Authentication credentials were not provided."})
			return
		}

		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
			return []byte(fakeSigningKey), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Given token not valid for any token type"})
			return
		}

		userID, _ := claims["user_id"].(string)
		next.ServeHTTP(w, r.WithContext(contextWithUser(r, userID)))
	})
}

func (f *FakeBackend) requireAdminKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Api-Key "+f.AdminKey {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid admin API key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Handlers

func (f *FakeBackend) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	user, ok := f.users[req.Username]
	omitKey := f.omitAdminKey
	f.mu.Unlock()

	if !ok || user.password != req.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"status":      "Incorrect username/password provided. Please retry",
			"status_code": 401,
		})
		return
	}

	resp := map[string]any{
		"status":       "Login successful",
		"status_code":  200,
		"user_id":      user.id,
		"access_token": IssueToken(user.id, time.Now().Add(f.TokenTTL)),
		"is_admin":     user.isAdmin,
	}
	if user.isAdmin && !omitKey {
		resp["admin_api_key"] = f.AdminKey
	}
	writeJSON(w, http.StatusOK, resp)
}

func (f *FakeBackend) signup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.users[req.Username]; exists {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"username": []string{"This username is already taken."},
		})
		return
	}

	idStr := f.addUserLocked(req.Username, req.Email, req.Password, false)
	id, _ := strconv.Atoi(idStr)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "Account successfully created",
		"status_code": 200,
		"user_id":     id,
	})
}

func (f *FakeBackend) availability(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	destination := r.URL.Query().Get("destination")
	if source == "" || destination == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"detail": "source and destination query parameters are required.",
		})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	result := make([]map[string]any, 0)
	for _, id := range f.sortedTrainIDs() {
		t := f.trains[id]
		if strings.EqualFold(t.train.Source, source) && strings.EqualFold(t.train.Destination, destination) {
			result = append(result, map[string]any{
				"train_id":        t.train.TrainID,
				"train_name":      t.train.Name,
				"source":          t.train.Source,
				"destination":     t.train.Destination,
				"available_seats": t.available(),
			})
		}
	}
	writeJSON(w, http.StatusOK, result)
}

func (f *FakeBackend) trainDetail(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.trains[chi.URLParam(r, "trainID")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Train not found"})
		return
	}
	writeJSON(w, http.StatusOK, t.detail())
}

func (f *FakeBackend) seats(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	override := f.seatsHandler
	f.mu.Unlock()
	if override != nil {
		override(w, r)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.trains[chi.URLParam(r, "trainID")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Train not found"})
		return
	}

	numbers := make([]int, 0, len(t.seats))
	for n := range t.seats {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	matrix := make([][]map[string]any, 0)
	row := make([]map[string]any, 0, seatsPerRow)
	for _, n := range numbers {
		row = append(row, map[string]any{
			"seat_number": n,
			"status":      string(t.seats[n]),
			"is_booked":   t.seats[n] == domain.SeatBooked,
		})
		if len(row) == seatsPerRow {
			matrix = append(matrix, row)
			row = make([]map[string]any, 0, seatsPerRow)
		}
	}
	if len(row) > 0 {
		matrix = append(matrix, row)
	}

	resp := map[string]any{
		"train_id":        t.train.TrainID,
		"seat_matrix":     matrix,
		"total_seats":     t.train.TotalSeats,
		"available_seats": t.available(),
	}
	if f.pricePerSeat != nil {
		resp["price_per_seat"] = *f.pricePerSeat
	}
	writeJSON(w, http.StatusOK, resp)
}

func (f *FakeBackend) book(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	override := f.bookHandler
	f.mu.Unlock()
	if override != nil {
		override(w, r)
		return
	}

	var req struct {
		UserID      domain.FlexString `json:"user_id"`
		SeatNumbers []int             `json:"seat_numbers"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	if req.UserID == "" || len(req.SeatNumbers) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "user_id and seat_numbers are required."})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.trains[chi.URLParam(r, "trainID")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Train not found."})
		return
	}

	for _, n := range req.SeatNumbers {
		if _, exists := t.seats[n]; !exists {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"status":     "error",
				"message":    "One or more selected seats do not exist.",
				"error_type": "invalid_seats",
			})
			return
		}
	}

	var unavailable []int
	for _, n := range req.SeatNumbers {
		if t.seats[n] != domain.SeatAvailable {
			unavailable = append(unavailable, n)
		}
	}
	if len(unavailable) > 0 {
		writeJSON(w, http.StatusConflict, map[string]any{
			"status":            "error",
			"message":           "Some selected seats are not available.",
			"unavailable_seats": unavailable,
			"available_seats":   t.availableNumbers(),
			"error_type":        "seats_taken",
		})
		return
	}

	price := 500.0
	if f.pricePerSeat != nil {
		price = *f.pricePerSeat
	}

	for _, n := range req.SeatNumbers {
		t.seats[n] = domain.SeatBooked
	}
	booking := &fakeBooking{
		id:          f.nextBooking,
		trainID:     t.train.TrainID,
		userID:      string(req.UserID),
		seatNumbers: append([]int(nil), req.SeatNumbers...),
		totalPrice:  price * float64(len(req.SeatNumbers)),
		createdAt:   time.Now().UTC(),
	}
	f.nextBooking++
	f.bookings = append(f.bookings, booking)

	writeJSON(w, http.StatusCreated, map[string]any{
		"message":      "Seats booked successfully",
		"booking_id":   strconv.Itoa(booking.id),
		"seat_numbers": booking.seatNumbers,
		"status":       "CONFIRMED",
		"total_price":  booking.totalPrice,
	})
}

func (f *FakeBackend) bookingDetail(w http.ResponseWriter, r *http.Request) {
	userID := userFromContext(r)
	trainID := chi.URLParam(r, "trainID")
	bookingID, _ := strconv.Atoi(chi.URLParam(r, "bookingID"))

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, b := range f.bookings {
		if b.id == bookingID && b.trainID == trainID && b.userID == userID {
			t := f.trains[b.trainID]
			writeJSON(w, http.StatusOK, map[string]any{
				"booking_id":                  b.id,
				"train_id":                    b.trainID,
				"train_name":                  t.train.Name,
				"source":                      t.train.Source,
				"destination":                 t.train.Destination,
				"user_id":                     b.userID,
				"no_of_seats":                 len(b.seatNumbers),
				"seat_numbers":                b.seatNumbers,
				"arrival_time_at_source":      t.train.DepartureTime,
				"arrival_time_at_destination": t.train.ArrivalTime,
				"total_price":                 b.totalPrice,
				"booking_time":                b.createdAt.Format(time.RFC3339),
			})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"message": "Booking not found"})
}

func (f *FakeBackend) userBookings(w http.ResponseWriter, r *http.Request) {
	userID := userFromContext(r)

	f.mu.Lock()
	defer f.mu.Unlock()

	result := make([]map[string]any, 0)
	for i := len(f.bookings) - 1; i >= 0; i-- {
		b := f.bookings[i]
		if b.userID != userID {
			continue
		}
		t := f.trains[b.trainID]
		result = append(result, map[string]any{
			"booking_id": b.id,
			"train": map[string]any{
				"train_id":    t.train.TrainID,
				"name":        t.train.Name,
				"source":      t.train.Source,
				"destination": t.train.Destination,
			},
			"seat_numbers": b.seatNumbers,
			"num_seats":    len(b.seatNumbers),
			"total_price":  b.totalPrice,
			"status":       "CONFIRMED",
			"booking_date": b.createdAt.Format("2006-01-02 15:04:05"),
		})
	}
	writeJSON(w, http.StatusOK, result)
}

func (f *FakeBackend) createTrain(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateTrainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Failed to process request"})
		return
	}

	errs := map[string]string{}
	if req.TrainName == "" {
		errs["train_name"] = "Train name is required"
	}
	if req.Source == "" {
		errs["source"] = "Source station is required"
	}
	if req.Destination == "" {
		errs["destination"] = "Destination station is required"
	}
	if req.SeatCapacity <= 0 {
		errs["seat_capacity"] = "Seat capacity is required"
	}
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Validation failed", "details": errs})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	id := strconv.Itoa(f.nextTrain)
	f.nextTrain++
	f.addTrainLocked(id, req.TrainName, req.Source, req.Destination, req.SeatCapacity, req.DepartureTime, req.ArrivalTime)

	writeJSON(w, http.StatusCreated, map[string]any{
		"message":  "Train added successfully",
		"train_id": id,
		"status":   "success",
		"train_details": map[string]any{
			"name":           req.TrainName,
			"source":         req.Source,
			"destination":    req.Destination,
			"total_seats":    req.SeatCapacity,
			"departure_time": req.DepartureTime,
			"arrival_time":   req.ArrivalTime,
		},
	})
}

func (f *FakeBackend) adminTrains(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	result := make([]map[string]any, 0, len(f.trains))
	for _, id := range f.sortedTrainIDs() {
		t := f.trains[id]
		result = append(result, map[string]any{
			"train_id":        t.train.TrainID,
			"name":            t.train.Name,
			"source":          map[string]string{"station_code": strings.ToUpper(t.train.Source), "station_name": t.train.Source},
			"destination":     map[string]string{"station_code": strings.ToUpper(t.train.Destination), "station_name": t.train.Destination},
			"total_seats":     t.train.TotalSeats,
			"available_seats": t.available(),
			"departure_time":  t.train.DepartureTime,
			"arrival_time":    t.train.ArrivalTime,
		})
	}
	writeJSON(w, http.StatusOK, result)
}

func (f *FakeBackend) adminDeleteTrain(w http.ResponseWriter, r *http.Request) {
	trainID := chi.URLParam(r, "trainID")

	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.trains[trainID]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("Train with ID %s not found", trainID)})
		return
	}
	delete(f.trains, trainID)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Train %s (ID: %s) has been successfully deleted", t.train.Name, trainID),
	})
}

// Helpers

func (f *FakeBackend) sortedTrainIDs() []string {
	ids := make([]string, 0, len(f.trains))
	for id := range f.trains {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (t *fakeTrain) available() int {
	return len(t.availableNumbers())
}

func (t *fakeTrain) availableNumbers() []int {
	numbers := make([]int, 0, len(t.seats))
	for n, status := range t.seats {
		if status == domain.SeatAvailable {
			numbers = append(numbers, n)
		}
	}
	sort.Ints(numbers)
	return numbers
}

func (t *fakeTrain) detail() map[string]any {
	return map[string]any{
		"train_id":        t.train.TrainID,
		"name":            t.train.Name,
		"source":          t.train.Source,
		"destination":     t.train.Destination,
		"total_seats":     t.train.TotalSeats,
		"available_seats": t.available(),
		"departure_time":  t.train.DepartureTime,
		"arrival_time":    t.train.ArrivalTime,
	}
}

// WriteBackendJSON writes a JSON body with status, for custom handlers
func WriteBackendJSON(w http.ResponseWriter, status int, body any) {
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func contextWithUser(r *http.Request, userID string) context.Context {
	return context.WithValue(r.Context(), userKey{}, userID)
}

func userFromContext(r *http.Request) string {
	userID, _ := r.Context().Value(userKey{}).(string)
	return userID
}

// readAll drains the body and puts an identical copy back
func readAll(r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(r.Body)
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, err
}
