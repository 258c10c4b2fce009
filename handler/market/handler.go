package handler

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"mvmarket-view-onchain/model"
	"mvmarket-view-onchain/usecase/market"
)

const (
	csrfCookieName = "mvmarket_csrf"
	csrfFormField  = "csrf_token"
)

var (
	errBuyUnauthorized = errors.New("purchase token required")
	errBuyForbidden    = errors.New("cross-origin purchase request rejected")
)

// BuyOptions はHTTP経由の購入の設定。購入はサーバーの鍵で署名されるため既定は無効
type BuyOptions struct {
	Enabled bool
	Token   string // APIの購入に必要な Bearer トークン
}

type MarketHandler struct {
	marketUC usecase.MarketUsecase
	buy      BuyOptions
}

func NewMarketHandler(uc usecase.MarketUsecase, buy BuyOptions) *MarketHandler {
	return &MarketHandler{marketUC: uc, buy: buy}
}

// Register はルーターにエンドポイントを登録する。購入ルートは有効時のみ
func (h *MarketHandler) Register(router *mux.Router) {
	router.HandleFunc("/", h.HandleIndex).Methods("GET")

	api := router.PathPrefix("/api/v1/market").Subrouter()
	api.HandleFunc("/listings", h.HandleListings).Methods("GET")
	api.HandleFunc("/listings/reload", h.HandleReload).Methods("POST")
	api.HandleFunc("/info", h.HandleContractInfo).Methods("GET")
	api.HandleFunc("/verify-tx", h.HandleVerifyTransaction).Methods("POST")
	api.HandleFunc("/verify-purchase", h.HandleVerifyPurchase).Methods("POST")

	if h.buy.Enabled {
		router.HandleFunc("/buy/{tokenId}", h.HandleBuyForm).Methods("POST")
		api.HandleFunc("/listings/{tokenId}/buy", h.HandleBuy).Methods("POST")
	}
}

// HandleIndex は出品一覧をHTMLのグリッドとして描画
func (h *MarketHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	opts := PageOptions{BuyEnabled: h.buy.Enabled}
	if h.buy.Enabled {
		opts.CSRFToken = h.csrfToken(w, r)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := RenderPage(w, h.marketUC.View(), opts); err != nil {
		zap.L().With(zap.Error(err)).Error("Failed to render market page")
	}
}

// HandleListings は一覧画面の状態をJSONで返す
func (h *MarketHandler) HandleListings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.marketUC.View())
}

// HandleReload は一覧を再取得する。失敗時は途中結果を返さない
func (h *MarketHandler) HandleReload(w http.ResponseWriter, r *http.Request) {
	if _, err := h.marketUC.LoadListings(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.marketUC.View())
}

// HandleBuy は出品を購入し、確定結果を返す。Bearer トークン必須
func (h *MarketHandler) HandleBuy(w http.ResponseWriter, r *http.Request) {
	if err := h.authorizeToken(r); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.purchase(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleBuyForm はHTMLの購入ボタンから呼ばれ、購入後に一覧へ戻す。
// 同一オリジンかつ CSRF クッキーとフォーム値が一致する場合のみ受け付ける
func (h *MarketHandler) HandleBuyForm(w http.ResponseWriter, r *http.Request) {
	if err := authorizeForm(r); err != nil {
		writeError(w, err)
		return
	}

	if _, err := h.purchase(r); err != nil {
		writeError(w, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *MarketHandler) purchase(r *http.Request) (*model.PurchaseResult, error) {
	tokenId, err := strconv.ParseInt(mux.Vars(r)["tokenId"], 10, 64)
	if err != nil {
		return nil, errBadRequest("Invalid token ID")
	}

	listing, err := h.marketUC.FindListing(tokenId)
	if err != nil {
		return nil, err
	}

	return h.marketUC.Purchase(r.Context(), listing)
}

// csrfToken はクッキーのトークンを返す。無ければ発行する
func (h *MarketHandler) csrfToken(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(csrfCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	token := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	return token
}

func (h *MarketHandler) authorizeToken(r *http.Request) error {
	given, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || h.buy.Token == "" || !tokensEqual(given, h.buy.Token) {
		return errBuyUnauthorized
	}
	return nil
}

func authorizeForm(r *http.Request) error {
	if !sameOrigin(r) {
		return errBuyForbidden
	}

	cookie, err := r.Cookie(csrfCookieName)
	if err != nil || cookie.Value == "" {
		return errBuyForbidden
	}
	if !tokensEqual(r.PostFormValue(csrfFormField), cookie.Value) {
		return errBuyForbidden
	}
	return nil
}

// sameOrigin は Origin (無ければ Referer) のホストがリクエスト先と一致するか
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = r.Header.Get("Referer")
	}
	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host != "" && u.Host == r.Host
}

func tokensEqual(a, b string) bool {
	return a != "" && subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// HandleContractInfo はコントラクト情報を返す
func (h *MarketHandler) HandleContractInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.marketUC.ContractInfo(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// VerifyTxRequest はトランザクション検証リクエスト
type VerifyTxRequest struct {
	TxHash  string `json:"tx_hash"`
	TokenId int64  `json:"token_id,omitempty"`
}

// HandleVerifyTransaction はトランザクションを検証
func (h *MarketHandler) HandleVerifyTransaction(w http.ResponseWriter, r *http.Request) {
	req, err := decodeVerifyRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	verification, err := h.marketUC.VerifyTransaction(r.Context(), req.TxHash)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, verification)
}

// HandleVerifyPurchase はブラウザのウォレットから送信された購入トランザクションを検証
func (h *MarketHandler) HandleVerifyPurchase(w http.ResponseWriter, r *http.Request) {
	req, err := decodeVerifyRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	verification, err := h.marketUC.VerifyPurchase(r.Context(), req.TxHash, req.TokenId)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, verification)
}

func decodeVerifyRequest(r *http.Request) (*VerifyTxRequest, error) {
	var req VerifyTxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errBadRequest("Invalid request body")
	}
	if req.TxHash == "" {
		return nil, errBadRequest("tx_hash is required")
	}
	return &req, nil
}

type badRequestError string

func (e badRequestError) Error() string { return string(e) }

func errBadRequest(msg string) error { return badRequestError(msg) }

// statusFor はエラーをHTTPステータスに変換する
func statusFor(err error) int {
	var badRequest badRequestError
	switch {
	case errors.As(err, &badRequest):
		return http.StatusBadRequest
	case errors.Is(err, errBuyUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errBuyForbidden):
		return http.StatusForbidden
	case errors.Is(err, model.ErrListingNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidPrice), errors.Is(err, model.ErrInvalidTxHash):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrWalletNotConnected):
		return http.StatusPreconditionFailed
	case errors.Is(err, model.ErrTransactionReverted):
		return http.StatusConflict
	case errors.Is(err, model.ErrTransactionPending):
		return http.StatusAccepted
	case errors.Is(err, model.ErrMetadataUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		zap.L().With(zap.Error(err)).Error("Request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().With(zap.Error(err)).Warn("Failed to encode response")
	}
}
