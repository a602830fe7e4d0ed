package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/25x8/playvested/internal/models"
	"github.com/25x8/playvested/internal/repository"
)

var (
	errBadCredentials  = errors.New("invalid credentials")
	errLinkedElsewhere = errors.New("account linked to another player")
)

type Handler struct {
	Repo   repository.Repository
	Logger *slog.Logger
	NewID  func() string
	Now    func() time.Time
}

func NewHandler(repo repository.Repository, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Repo:   repo,
		Logger: logger,
		NewID:  newPlayerID,
		Now:    time.Now,
	}
}

// newPlayerID returns a 24 character hex identifier.
func newPlayerID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

func (h *Handler) IsLinked(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")

	linked, err := h.Repo.IsLinked(r.Context(), playerID)
	if err != nil {
		h.serverError(w, "is-linked lookup failed", err)
		return
	}

	writeText(w, strconv.FormatBool(linked))
}

func (h *Handler) CreatePlayer(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	charityName := r.PostForm.Get(models.FieldCharityName)
	gameID := r.PostForm.Get(models.FieldGameID)
	if charityName == "" || gameID == "" {
		http.Error(w, "charityName and gameID are required", http.StatusBadRequest)
		return
	}

	player := models.Player{
		ID:          h.NewID(),
		GameID:      gameID,
		CharityName: charityName,
	}
	if err := h.Repo.CreatePlayer(r.Context(), player); err != nil {
		h.serverError(w, "create player failed", err)
		return
	}

	h.Logger.Info("player created", "player_id", player.ID, "game_id", gameID, "charity", charityName)
	writeText(w, player.ID)
}

// LinkPlayer attaches an account to an existing player.
func (h *Handler) LinkPlayer(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	ctx := r.Context()

	player, err := h.Repo.GetPlayer(ctx, playerID)
	if err != nil {
		h.serverError(w, "player lookup failed", err)
		return
	}
	if player == nil {
		http.Error(w, "Player not found", http.StatusNotFound)
		return
	}

	account, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	if account.PlayerID != "" && account.PlayerID != playerID {
		http.Error(w, errLinkedElsewhere.Error(), http.StatusConflict)
		return
	}

	if err := h.Repo.LinkAccount(ctx, account.Username, playerID); err != nil {
		h.serverError(w, "link account failed", err)
		return
	}

	h.Logger.Info("account linked", "player_id", playerID)
	writeText(w, models.StatusLinked)
}

// LinkGame resolves the account's player for a game, creating one if the
// account has none yet, and returns its identifier.
func (h *Handler) LinkGame(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")
	ctx := r.Context()

	account, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	if account.PlayerID != "" {
		writeText(w, account.PlayerID)
		return
	}

	player := models.Player{ID: h.NewID(), GameID: gameID}
	if err := h.Repo.CreatePlayer(ctx, player); err != nil {
		h.serverError(w, "create player failed", err)
		return
	}
	if err := h.Repo.LinkAccount(ctx, account.Username, player.ID); err != nil {
		h.serverError(w, "link account failed", err)
		return
	}

	h.Logger.Info("player created by link", "player_id", player.ID, "game_id", gameID)
	writeText(w, player.ID)
}

func (h *Handler) RecordEarning(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	amount, err := strconv.ParseFloat(r.PostForm.Get(models.FieldAmountEarned), 64)
	if err != nil || amount < 0 {
		http.Error(w, "amountEarned must be a non-negative number", http.StatusBadRequest)
		return
	}

	record := models.Record{
		DevID:    r.PostForm.Get(models.FieldDevID),
		GameID:   r.PostForm.Get(models.FieldGameID),
		PlayerID: r.PostForm.Get(models.FieldPlayerID),
		Amount:   amount,
	}
	if record.PlayerID == "" {
		http.Error(w, "playerID is required", http.StatusBadRequest)
		return
	}

	_, err = h.Repo.CreateRecord(r.Context(), record)
	if errors.Is(err, repository.ErrPlayerNotFound) {
		http.Error(w, "Player not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.serverError(w, "record earning failed", err)
		return
	}

	writeJSON(w, models.EarningResult{AmountRecorded: amount, Status: models.StatusRecorded})
}

func (h *Handler) Totals(w http.ResponseWriter, r *http.Request) {
	query, err := models.ParseTotalsQuery(r.URL.Query())
	if err != nil {
		http.Error(w, "Invalid window", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	filter := repository.RecordFilter{
		DevID:    query.PublisherID,
		GameID:   query.ApplicationID,
		PlayerID: query.PlayerID,
	}

	lifetime, err := h.Repo.SumRecords(ctx, filter)
	if err != nil {
		h.serverError(w, "lifetime total failed", err)
		return
	}

	filter.Since = query.Since(h.Now())
	filtered, err := h.Repo.SumRecords(ctx, filter)
	if err != nil {
		h.serverError(w, "filtered total failed", err)
		return
	}

	writeJSON(w, models.TotalsResult{Lifetime: lifetime, Filtered: filtered})
}

// authenticate checks the posted credentials, registering the account on
// first use.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (*models.Account, bool) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return nil, false
	}

	username := r.PostForm.Get(models.FieldUsername)
	password := r.PostForm.Get(models.FieldPassword)
	if username == "" || password == "" {
		http.Error(w, "Username and password are required", http.StatusBadRequest)
		return nil, false
	}

	account, err := h.loginOrRegister(r.Context(), username, password)
	if errors.Is(err, errBadCredentials) {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return nil, false
	}
	if err != nil {
		h.serverError(w, "authentication failed", err)
		return nil, false
	}
	return account, true
}

func (h *Handler) loginOrRegister(ctx context.Context, username, password string) (*models.Account, error) {
	account, err := h.Repo.GetAccount(ctx, username)
	if err != nil {
		return nil, err
	}

	if account != nil {
		if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
			return nil, errBadCredentials
		}
		return account, nil
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	account = &models.Account{Username: username, PasswordHash: string(hashedPassword)}
	if err := h.Repo.CreateAccount(ctx, *account); err != nil {
		return nil, err
	}
	return account, nil
}

func (h *Handler) serverError(w http.ResponseWriter, msg string, err error) {
	h.Logger.Error(msg, "error", err)
	http.Error(w, "Server error", http.StatusInternalServerError)
}

func writeText(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, body)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
