package rewards

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	model "github.com/glkeru/loyalty/rewards/internal/models"
	service "github.com/glkeru/loyalty/rewards/internal/services"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type LoyaltyHandler struct {
	router  *mux.Router
	service *service.RedemptionService
	logger  *zap.Logger
}

type AwardRequest struct {
	UserID        string `json:"userId"`
	Points        int64  `json:"points"`
	Kind          string `json:"kind"`
	Description   string `json:"description"`
	ReferenceID   string `json:"referenceId"`
	ReferenceType string `json:"referenceType"`
}

type AccountResponse struct {
	UserID          string `json:"userId"`
	SpendablePoints int64  `json:"spendablePoints"`
	LifetimePoints  int64  `json:"lifetimePoints"`
	Tier            string `json:"tier"`
}

type RedeemRequest struct {
	UserID   string `json:"userId"`
	RewardID string `json:"rewardId"`
}

type RedeemResponse struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type ConsumeRequest struct {
	Code string `json:"code"`
}

type ConsumeResponse struct {
	Code     string    `json:"code"`
	Status   string    `json:"status"`
	UserID   string    `json:"userId"`
	RewardID string    `json:"rewardId"`
	IssuedAt time.Time `json:"issuedAt"`
}

func NewHandler(serv *service.RedemptionService, logger *zap.Logger) *LoyaltyHandler {
	router := mux.NewRouter()
	handler := &LoyaltyHandler{router, serv, logger}
	router.Use(MiddlewareLog())
	router.HandleFunc("/award", handler.AwardHandler).Methods(http.MethodPost)
	router.HandleFunc("/redeem", handler.RedeemHandler).Methods(http.MethodPost)
	router.HandleFunc("/consume", handler.ConsumeHandler).Methods(http.MethodPost)
	router.HandleFunc("/account/{user}", handler.AccountHandler).Methods(http.MethodGet)
	router.HandleFunc("/account/{user}/tnx", handler.TnxHandler).Methods(http.MethodGet)
	router.HandleFunc("/rewards", handler.RewardsHandler).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return handler
}

func (h *LoyaltyHandler) ServeHTTP(w http.ResponseWriter, res *http.Request) {
	h.router.ServeHTTP(w, res)
}

func (h *LoyaltyHandler) Log(msg string, service string, err error) {
	h.logger.Error(msg,
		zap.String("service", service),
		zap.Error(err),
	)
}

// Статус по ошибке домена
func httpStatus(err error) int {
	switch {
	case errors.Is(err, model.ErrRewardNotFound),
		errors.Is(err, model.ErrCodeNotFound),
		errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrRewardInactive),
		errors.Is(err, model.ErrTierNotMet),
		errors.Is(err, model.ErrInsufficientPoints),
		errors.Is(err, model.ErrCodeExpired),
		errors.Is(err, model.ErrCodeAlreadyUsed):
		return http.StatusConflict
	case errors.Is(err, model.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func accountResponse(account model.LoyaltyAccount) *AccountResponse {
	return &AccountResponse{
		UserID:          account.UserID,
		SpendablePoints: account.SpendablePoints,
		LifetimePoints:  account.LifetimePoints,
		Tier:            string(account.Tier),
	}
}

func (h *LoyaltyHandler) writeJSON(w http.ResponseWriter, service string, response any) {
	j, err := json.Marshal(response)
	if err != nil {
		h.Log("Marshal", service, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(j)
}

// Начисление баллов за внешнее событие
func (h *LoyaltyHandler) AwardHandler(w http.ResponseWriter, req *http.Request) {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		h.Log("Get request body", "AwardHandler", err)
		http.Error(w, "Body is empty", http.StatusBadRequest)
		return
	}
	defer req.Body.Close()

	award := &AwardRequest{}
	err = json.Unmarshal(body, award)
	if err != nil {
		h.Log("Unmarshal", "AwardHandler", err)
		http.Error(w, "Body is not correct", http.StatusBadRequest)
		return
	}
	if award.UserID == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}

	account, err := h.service.AwardPoints(req.Context(), award.UserID, award.Points, model.TxKind(award.Kind), award.Description, award.ReferenceID, award.ReferenceType)
	if err != nil {
		h.Log("AwardPoints", "AwardHandler", err)
		http.Error(w, err.Error(), httpStatus(err))
		return
	}
	h.writeJSON(w, "AwardHandler", accountResponse(account))
}

// Обмен баллов на код вознаграждения
func (h *LoyaltyHandler) RedeemHandler(w http.ResponseWriter, req *http.Request) {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		h.Log("Get request body", "RedeemHandler", err)
		http.Error(w, "Body is empty", http.StatusBadRequest)
		return
	}
	defer req.Body.Close()

	redeem := &RedeemRequest{}
	err = json.Unmarshal(body, redeem)
	if err != nil {
		h.Log("Unmarshal", "RedeemHandler", err)
		http.Error(w, "Body is not correct", http.StatusBadRequest)
		return
	}
	rewardID, err := uuid.Parse(redeem.RewardID)
	if err != nil {
		http.Error(w, "rewardId is not correct", http.StatusBadRequest)
		return
	}

	red, err := h.service.Redeem(req.Context(), redeem.UserID, rewardID)
	if err != nil {
		h.Log("Redeem", "RedeemHandler", err)
		http.Error(w, err.Error(), httpStatus(err))
		return
	}
	h.writeJSON(w, "RedeemHandler", &RedeemResponse{Code: red.Code, ExpiresAt: red.ExpiresAt})
}

// Погашение кода на точке обслуживания
func (h *LoyaltyHandler) ConsumeHandler(w http.ResponseWriter, req *http.Request) {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		h.Log("Get request body", "ConsumeHandler", err)
		http.Error(w, "Body is empty", http.StatusBadRequest)
		return
	}
	defer req.Body.Close()

	consume := &ConsumeRequest{}
	err = json.Unmarshal(body, consume)
	if err != nil {
		h.Log("Unmarshal", "ConsumeHandler", err)
		http.Error(w, "Body is not correct", http.StatusBadRequest)
		return
	}

	red, err := h.service.ValidateAndConsume(req.Context(), consume.Code)
	if err != nil {
		h.Log("ValidateAndConsume", "ConsumeHandler", err)
		http.Error(w, err.Error(), httpStatus(err))
		return
	}
	h.writeJSON(w, "ConsumeHandler", &ConsumeResponse{
		Code:     red.Code,
		Status:   string(red.Status),
		UserID:   red.UserID,
		RewardID: red.RewardID.String(),
		IssuedAt: red.IssuedAt,
	})
}

// Снимок счета
func (h *LoyaltyHandler) AccountHandler(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	account, err := h.service.GetAccount(req.Context(), vars["user"])
	if err != nil {
		h.Log("GetAccount", "AccountHandler", err)
		http.Error(w, err.Error(), httpStatus(err))
		return
	}
	h.writeJSON(w, "AccountHandler", accountResponse(account))
}

// История транзакций за период
func (h *LoyaltyHandler) TnxHandler(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	from, err := time.Parse("2006-01-02", req.URL.Query().Get("from"))
	if err != nil {
		http.Error(w, "from is not correct", http.StatusBadRequest)
		return
	}
	to, err := time.Parse("2006-01-02", req.URL.Query().Get("to"))
	if err != nil {
		http.Error(w, "to is not correct", http.StatusBadRequest)
		return
	}

	tnxs, err := h.service.GetTnx(req.Context(), vars["user"], from, to.Add(24*time.Hour-time.Second))
	if err != nil {
		h.Log("GetTnx", "TnxHandler", err)
		http.Error(w, err.Error(), httpStatus(err))
		return
	}
	h.writeJSON(w, "TnxHandler", tnxs)
}

// Активные вознаграждения
func (h *LoyaltyHandler) RewardsHandler(w http.ResponseWriter, req *http.Request) {
	rewards, err := h.service.ListActiveRewards(req.Context())
	if err != nil {
		h.Log("ListActiveRewards", "RewardsHandler", err)
		http.Error(w, err.Error(), httpStatus(err))
		return
	}
	if rewards == nil {
		http.Error(w, "Active rewards not found", http.StatusNotFound)
		return
	}
	h.writeJSON(w, "RewardsHandler", rewards)
}
