// ABOUTME: HTTP handlers for the OTP login endpoints and sample resources
// ABOUTME: Maps challenge service errors onto JSON error responses

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sunware/authgate/internal/auth"
	"github.com/sunware/authgate/internal/challenge"
)

// GenerateOTPRequest is the JSON request body for POST /auth/generate-otp.
type GenerateOTPRequest struct {
	Email string `json:"email"`
}

// ValidateOTPRequest is the JSON request body for POST /auth/validate-otp.
type ValidateOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// handleGenerateOTP handles POST /auth/generate-otp requests.
// It issues a fresh passcode for a registered identity and emails it.
func (g *Gateway) handleGenerateOTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		auth.WriteJSONError(w, http.StatusMethodNotAllowed, "Method not allowed.")
		return
	}

	var req GenerateOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		auth.WriteJSONError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	err := g.challenges.RequestChallenge(r.Context(), req.Email)
	switch {
	case errors.Is(err, challenge.ErrUnknownIdentity):
		auth.WriteJSONError(w, http.StatusBadRequest, "Unknown email address.")
		return
	case errors.Is(err, challenge.ErrDelivery):
		auth.WriteJSONError(w, http.StatusBadGateway, "Failed to deliver OTP email.")
		return
	case err != nil:
		g.logger.Error("otp request failed", "error", err)
		auth.WriteJSONError(w, http.StatusInternalServerError, "Internal server error.")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "OTP sent to your email.",
	})
}

// handleValidateOTP handles POST /auth/validate-otp requests.
// A matching passcode is exchanged for a signed bearer token; every
// failure collapses into one generic 401 body.
func (g *Gateway) handleValidateOTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		auth.WriteJSONError(w, http.StatusMethodNotAllowed, "Method not allowed.")
		return
	}

	var req ValidateOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		auth.WriteJSONError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	token, err := g.challenges.RedeemChallenge(r.Context(), req.Email, req.OTP)
	if err != nil {
		// Unknown email and wrong passcode look identical to the caller.
		if !errors.Is(err, challenge.ErrInvalidChallenge) && !errors.Is(err, challenge.ErrUnknownIdentity) {
			g.logger.Error("otp redemption failed", "error", err)
		}
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"message": "Invalid or expired OTP.",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "OTP validated successfully",
		"token":   token,
	})
}

func (g *Gateway) handleOnboard(w http.ResponseWriter, r *http.Request) {
	writeText(w, "This is a protected resource for onboarding employees!")
}

func (g *Gateway) handleUpdate(w http.ResponseWriter, r *http.Request) {
	writeText(w, "This is a protected resource for updating employees!")
}

func (g *Gateway) handleDelete(w http.ResponseWriter, r *http.Request) {
	writeText(w, "This is a protected resource for deleting employees!")
}

func (g *Gateway) handleRead(w http.ResponseWriter, r *http.Request) {
	writeText(w, "This is a protected resource for reading employee data!")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeText(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}
