package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/campx/campx-backend/internal/config"
	"github.com/campx/campx-backend/internal/dto"
	"github.com/campx/campx-backend/internal/handlers"
	"github.com/campx/campx-backend/internal/models"
	"github.com/campx/campx-backend/internal/realtime"
	"github.com/campx/campx-backend/internal/routes"
	"github.com/campx/campx-backend/internal/services"
	"github.com/campx/campx-backend/internal/testutil"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testEnv struct {
	app  *fiber.App
	db   *gorm.DB
	cfg  *config.Config
	auth *services.AuthService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.NewDB(t)
	cfg := &config.Config{
		JWTSecret:          "handler-test-secret",
		JWTAccessExpiry:    15 * time.Minute,
		JWTRefreshExpiry:   time.Hour,
		AllowedEmailDomain: "campus.edu",
		AdminEmails:        "root@campus.edu",
		UploadDir:          t.TempDir(),
		MaxListingImages:   2,
		RecentlyDeletedTTL: time.Hour,
		AITimeout:          time.Second,
	}

	hub := realtime.NewHub()
	mod := services.NewModerationService()
	auth := services.NewAuthService(db, cfg, nil)
	listings := services.NewListingService(db, mod, cfg.MaxListingImages)
	cascade := services.NewCascadeService(db, cfg.RecentlyDeletedTTL)
	bookings := services.NewBookingService(db, nil, hub)
	messages := services.NewMessageService(db, mod, hub)

	app := fiber.New()
	routes.Setup(app, cfg, db, routes.Handlers{
		Auth:     handlers.NewAuthHandler(auth),
		Health:   handlers.NewHealthHandler(db),
		Listing:  handlers.NewListingHandler(listings, cascade, cfg.UploadDir, cfg.MaxListingImages),
		Sale:     handlers.NewSaleHandler(bookings),
		Review:   handlers.NewReviewHandler(services.NewReviewService(db, mod)),
		Message:  handlers.NewMessageHandler(messages),
		Admin:    handlers.NewAdminHandler(services.NewAdminService(db, listings), cascade, messages, bookings),
		AI:       handlers.NewAIHandler(services.NewAIService(cfg)),
		Upload:   handlers.NewUploadHandler(cfg.UploadDir),
		Realtime: handlers.NewWSHandler(hub),
	})

	return &testEnv{app: app, db: db, cfg: cfg, auth: auth}
}

func (e *testEnv) token(t *testing.T, user *models.User) string {
	t.Helper()
	tok, err := e.auth.IssueAccessToken(user)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *http.Response {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body dto.ErrorResponse
	decode(t, resp, &body)
	assert.True(t, body.Error)
	return body.Code
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body dto.HealthResponse
	decode(t, resp, &body)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "ok", body.DB)
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t)
	reg := dto.RegisterRequest{FullName: "Dana", Email: "dana@campus.edu", Password: "password1"}

	resp := env.do(t, http.MethodPost, "/api/auth/register", "", reg)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var auth dto.AuthResponse
	decode(t, resp, &auth)
	assert.NotEmpty(t, auth.AccessToken)

	resp = env.do(t, http.MethodPost, "/api/auth/register", "", reg)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "CONFLICT", errorCode(t, resp))

	resp = env.do(t, http.MethodGet, "/api/auth/me", auth.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me dto.UserResponse
	decode(t, resp, &me)
	assert.Equal(t, "dana@campus.edu", me.Email)

	resp = env.do(t, http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHENTICATED", errorCode(t, resp))

	resp = env.do(t, http.MethodPost, "/api/auth/login", "", dto.LoginRequest{Email: "dana@campus.edu", Password: "nope-nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAccountRecoveryEndpoints(t *testing.T) {
	env := newTestEnv(t)
	user := testutil.CreateUser(t, env.db, "user")

	var known, unknown struct {
		Message string `json:"message"`
	}
	resp := env.do(t, http.MethodPost, "/api/auth/forgot-password", "", dto.EmailRequest{Email: user.Email})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &known)
	resp = env.do(t, http.MethodPost, "/api/auth/forgot-password", "", dto.EmailRequest{Email: "ghost@campus.edu"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &unknown)
	assert.Equal(t, known, unknown)

	resp = env.do(t, http.MethodPost, "/api/auth/reset-password", "", dto.ResetPasswordRequest{Token: "nope", NewPassword: "password9"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_ARGUMENT", errorCode(t, resp))

	resp = env.do(t, http.MethodGet, "/api/auth/verify-email?token=nope", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPublicProfileEndpoint(t *testing.T) {
	env := newTestEnv(t)
	seller := testutil.CreateUser(t, env.db, "seller")
	testutil.CreateListing(t, env.db, seller, "globe", 1)

	resp := env.do(t, http.MethodGet, "/api/users/"+seller.ID.String(), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var profile dto.PublicProfileResponse
	decode(t, resp, &profile)
	assert.Equal(t, seller.ID, profile.ID)
	assert.Equal(t, int64(1), profile.ActiveListings)
	assert.Zero(t, profile.TotalReviews)

	resp = env.do(t, http.MethodGet, "/api/users/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListingCreateQueryAndGet(t *testing.T) {
	env := newTestEnv(t)
	seller := testutil.CreateUser(t, env.db, "seller")
	viewer := testutil.CreateUser(t, env.db, "viewer")

	resp := env.do(t, http.MethodPost, "/api/listings", "", map[string]interface{}{"title": "Desk"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/listings", env.token(t, seller), map[string]interface{}{
		"title": "Study desk", "category": "Furniture", "price": "1200.50", "condition": "Good", "quantity": 2,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created dto.ListingResponse
	decode(t, resp, &created)
	assert.Equal(t, models.StatusAvailable, created.Status)
	assert.Equal(t, "1200.5", created.Price.String())

	resp = env.do(t, http.MethodGet, "/api/listings?q=desk&max_price=2000", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list dto.ListingListResponse
	decode(t, resp, &list)
	require.Len(t, list.Listings, 1)
	assert.False(t, list.Listings[0].IsOwner)

	resp = env.do(t, http.MethodGet, "/api/listings?min_price=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/listings/"+created.ID.String(), env.token(t, viewer), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var detail dto.ListingDetailResponse
	decode(t, resp, &detail)
	assert.Equal(t, 1, detail.Listing.Views)
	assert.False(t, detail.Listing.IsOwner)

	resp = env.do(t, http.MethodGet, "/api/listings/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_ARGUMENT", errorCode(t, resp))

	resp = env.do(t, http.MethodGet, "/api/listings/categories", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListingCreateMultipart(t *testing.T) {
	env := newTestEnv(t)
	seller := testutil.CreateUser(t, env.db, "seller")

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("title", "Calculator"))
	require.NoError(t, w.WriteField("category", "Electronics"))
	require.NoError(t, w.WriteField("price", "900"))
	require.NoError(t, w.WriteField("quantity", "3"))
	part, err := w.CreateFormFile("image1", "calc.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("\x89PNG fake"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/listings", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+env.token(t, seller))
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created dto.ListingResponse
	decode(t, resp, &created)
	assert.Equal(t, 3, created.Quantity)
	assert.Equal(t, "900", created.Price.String())
	require.Len(t, created.Images, 1)

	_, err = os.Stat(filepath.Join(env.cfg.UploadDir, filepath.Base(created.Images[0])))
	assert.NoError(t, err)
}

func TestUploadRejectsUnknownType(t *testing.T) {
	env := newTestEnv(t)
	user := testutil.CreateUser(t, env.db, "user")

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("image", "notes.pdf")
	require.NoError(t, err)
	_, _ = part.Write([]byte("%PDF"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/uploads", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+env.token(t, user))
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBookingEndpoint(t *testing.T) {
	env := newTestEnv(t)
	seller := testutil.CreateUser(t, env.db, "seller")
	buyer := testutil.CreateUser(t, env.db, "buyer")
	listing := testutil.CreateListing(t, env.db, seller, "lamp", 1)
	path := "/api/listings/" + listing.ID.String() + "/book"

	resp := env.do(t, http.MethodPost, path, env.token(t, seller), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_OPERATION", errorCode(t, resp))

	resp = env.do(t, http.MethodPost, path, env.token(t, buyer), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var booking dto.BookingResponse
	decode(t, resp, &booking)
	assert.True(t, booking.SaleRecorded)
	assert.True(t, booking.MessageCreated)
	assert.Equal(t, models.StatusSold, booking.Status)

	resp = env.do(t, http.MethodPost, path, env.token(t, buyer), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "ALREADY_SOLD", errorCode(t, resp))

	resp = env.do(t, http.MethodGet, "/api/sales/purchases", env.token(t, buyer), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var purchases struct {
		Sales []dto.SaleResponse `json:"sales"`
	}
	decode(t, resp, &purchases)
	assert.Len(t, purchases.Sales, 1)
}

func TestReviewRequiresPurchase(t *testing.T) {
	env := newTestEnv(t)
	seller := testutil.CreateUser(t, env.db, "seller")
	stranger := testutil.CreateUser(t, env.db, "stranger")
	listing := testutil.CreateListing(t, env.db, seller, "bike", 1)

	resp := env.do(t, http.MethodPost, "/api/reviews", env.token(t, stranger), dto.SubmitReviewRequest{
		SellerID: seller.ID, ListingID: listing.ID, Rating: 5, Text: "great",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, resp))

	resp = env.do(t, http.MethodGet, "/api/reviews/"+seller.ID.String(), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var reviews dto.SellerReviewsResponse
	decode(t, resp, &reviews)
	assert.Zero(t, reviews.TotalReviews)
	assert.Zero(t, reviews.AverageRating)

	buyer := testutil.CreateUser(t, env.db, "buyer")
	resp = env.do(t, http.MethodPost, "/api/listings/"+listing.ID.String()+"/book", env.token(t, buyer), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/reviews", env.token(t, buyer), dto.SubmitReviewRequest{
		SellerID: seller.ID, ListingID: listing.ID, Rating: 4, Text: "smooth handover",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var submitted struct {
		ID      string `json:"id"`
		Message string `json:"message"`
	}
	decode(t, resp, &submitted)
	assert.NotEmpty(t, submitted.ID)
	assert.Equal(t, "Review submitted", submitted.Message)

	resp = env.do(t, http.MethodGet, "/api/reviews/"+seller.ID.String(), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &reviews)
	assert.Equal(t, 1, reviews.TotalReviews)
}

func TestDeleteAndRestoreListing(t *testing.T) {
	env := newTestEnv(t)
	seller := testutil.CreateUser(t, env.db, "seller")
	other := testutil.CreateUser(t, env.db, "other")
	listing := testutil.CreateListing(t, env.db, seller, "chair", 1)
	path := "/api/listings/" + listing.ID.String()

	resp := env.do(t, http.MethodDelete, path, env.token(t, other), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, path, env.token(t, seller), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cascade dto.CascadeResponse
	decode(t, resp, &cascade)
	assert.False(t, cascade.Degraded)

	resp = env.do(t, http.MethodPost, "/api/listings/restore", env.token(t, seller), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var restored dto.ListingResponse
	decode(t, resp, &restored)
	assert.Equal(t, listing.ID, restored.ID)

	resp = env.do(t, http.MethodPost, "/api/listings/restore", env.token(t, seller), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMessagesEndpoints(t *testing.T) {
	env := newTestEnv(t)
	alice := testutil.CreateUser(t, env.db, "alice")
	bob := testutil.CreateUser(t, env.db, "bob")

	resp := env.do(t, http.MethodPost, "/api/messages", env.token(t, alice), dto.SendMessageRequest{ReceiverID: bob.ID, Text: "hello"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/messages", env.token(t, bob), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var inbox struct {
		Messages []dto.MessageResponse `json:"messages"`
	}
	decode(t, resp, &inbox)
	require.Len(t, inbox.Messages, 1)
	assert.Equal(t, "hello", inbox.Messages[0].Text)
}

func TestOfferResponseEndpoint(t *testing.T) {
	env := newTestEnv(t)
	buyer := testutil.CreateUser(t, env.db, "buyer")
	seller := testutil.CreateUser(t, env.db, "seller")
	listing := testutil.CreateListing(t, env.db, seller, "camera", 1)
	amount := decimal.NewFromInt(1200)

	resp := env.do(t, http.MethodPost, "/api/messages", env.token(t, buyer), dto.SendMessageRequest{
		ReceiverID: seller.ID, ListingID: &listing.ID, Type: models.MessageTypeOffer, OfferAmount: &amount,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var offer dto.MessageResponse
	decode(t, resp, &offer)
	assert.Equal(t, models.OfferPending, offer.OfferStatus)
	path := "/api/messages/" + offer.ID.String() + "/offer"

	resp = env.do(t, http.MethodPut, path, env.token(t, buyer), dto.RespondOfferRequest{Status: "accepted"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "FORBIDDEN", errorCode(t, resp))

	resp = env.do(t, http.MethodPut, path, env.token(t, seller), dto.RespondOfferRequest{Status: "later"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_ARGUMENT", errorCode(t, resp))

	resp = env.do(t, http.MethodPut, path, env.token(t, seller), dto.RespondOfferRequest{Status: "rejected"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var answered dto.OfferResponse
	decode(t, resp, &answered)
	assert.Equal(t, models.OfferRejected, answered.OfferStatus)
	assert.Equal(t, buyer.ID, answered.Reply.ReceiverID)

	resp = env.do(t, http.MethodGet, "/api/messages", env.token(t, buyer), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var inbox struct {
		Messages []dto.MessageResponse `json:"messages"`
	}
	decode(t, resp, &inbox)
	require.Len(t, inbox.Messages, 1)
	assert.Equal(t, answered.Reply.Text, inbox.Messages[0].Text)
}

func TestAdminGate(t *testing.T) {
	env := newTestEnv(t)
	student := testutil.CreateUser(t, env.db, "student")
	admin := testutil.CreateUser(t, env.db, "admin", models.RoleAdmin)
	root := testutil.CreateUser(t, env.db, "root")
	require.NoError(t, env.db.Model(root).Update("email", "root@campus.edu").Error)
	root.Email = "root@campus.edu"

	resp := env.do(t, http.MethodGet, "/api/admin/stats", env.token(t, student), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "FORBIDDEN", errorCode(t, resp))

	resp = env.do(t, http.MethodGet, "/api/admin/stats", env.token(t, admin), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats dto.AdminStatsResponse
	decode(t, resp, &stats)
	assert.Equal(t, int64(3), stats.TotalUsers)

	resp = env.do(t, http.MethodGet, "/api/admin/users?search=student", env.token(t, root), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/api/admin/users/"+student.ID.String(), env.token(t, admin), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Zero(t, testutil.Count(t, env.db, &models.User{}, "id = ?", student.ID))
}

func TestAIPriceFallsBackWithoutProviders(t *testing.T) {
	env := newTestEnv(t)
	user := testutil.CreateUser(t, env.db, "user")

	resp := env.do(t, http.MethodPost, "/api/ai/price", env.token(t, user), map[string]interface{}{
		"category": "Books", "condition": "Fair", "user_price": 500,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var price dto.PricePredictionResponse
	decode(t, resp, &price)
	assert.Equal(t, services.SourceFallback, price.Prediction.Source)
	assert.Equal(t, "200", price.Prediction.Predicted.String())

	resp = env.do(t, http.MethodPost, "/api/ai/describe", env.token(t, user), dto.DescribeRequest{Title: "Lamp"})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "DEPENDENCY_FAILURE", errorCode(t, resp))
}

func TestAISearchAndSuggestionsWithoutProviders(t *testing.T) {
	env := newTestEnv(t)
	user := testutil.CreateUser(t, env.db, "user")

	resp := env.do(t, http.MethodPost, "/api/ai/smart-search", env.token(t, user), dto.SmartSearchRequest{Query: "used physics textbook"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var search dto.SmartSearchResponse
	decode(t, resp, &search)
	assert.Equal(t, services.SourceFallback, search.Source)
	assert.Equal(t, []string{"used", "physics", "textbook"}, search.Params.Keywords)

	resp = env.do(t, http.MethodPost, "/api/ai/suggest-message", env.token(t, user), dto.SuggestMessageRequest{ListingTitle: "bike", Kind: "meetup"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var suggest dto.SuggestMessageResponse
	decode(t, resp, &suggest)
	assert.Equal(t, services.SuggestMeetup, suggest.Kind)
	assert.Len(t, suggest.Suggestions, 3)

	resp = env.do(t, http.MethodPost, "/api/ai/smart-search", "", dto.SmartSearchRequest{Query: "bike"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebsocketRequiresTokenAndUpgrade(t *testing.T) {
	env := newTestEnv(t)
	user := testutil.CreateUser(t, env.db, "user")

	resp := env.do(t, http.MethodGet, "/api/ws", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/ws?token="+env.token(t, user), "", nil)
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}
