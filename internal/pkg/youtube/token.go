package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Refresh when the stored token expires within this margin, so a token never
// goes stale mid-operation.
const refreshSafetyMargin = 5 * time.Minute

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// ensureValidToken loads the account's credential and returns a plaintext
// access token, proactively refreshing it when close to expiry. A failed
// refresh marks the connection invalid so future calls short-circuit instead
// of retrying a doomed credential.
func (c *Client) ensureValidToken(ctx context.Context, accountID uuid.UUID) (string, error) {
	acc, err := c.accounts.GetByID(ctx, accountID)
	if err != nil {
		return "", err
	}

	if !acc.RefreshToken.Valid {
		return "", fmt.Errorf("%w: no refresh token stored", ErrReconnectRequired)
	}
	if !acc.ConnectionValid {
		return "", ErrReconnectRequired
	}

	deadline := c.now().Add(refreshSafetyMargin)
	if acc.AccessToken.Valid && acc.TokenExpiry.Valid && acc.TokenExpiry.Time.After(deadline) {
		// Decryption failure is a hard error: corrupted or misconfigured secrets
		return c.cipher.Decrypt(acc.AccessToken.String)
	}

	refreshToken, err := c.cipher.Decrypt(acc.RefreshToken.String)
	if err != nil {
		return "", err
	}

	accessToken, expiry, err := c.refreshAccessToken(ctx, refreshToken)
	if err != nil {
		if markErr := c.accounts.MarkConnectionInvalid(ctx, accountID); markErr != nil {
			log.Error().Err(markErr).Str("account_id", accountID.String()).Msg("Failed to invalidate connection")
		}

		log.Error().Err(err).Str("account_id", accountID.String()).Msg("Token refresh failed")
		return "", fmt.Errorf("%w: %v", ErrReconnectRequired, err)
	}

	encrypted, err := c.cipher.Encrypt(accessToken)
	if err != nil {
		return "", fmt.Errorf("encrypt refreshed token: %w", err)
	}

	if err := c.accounts.UpdateAccessToken(ctx, accountID, encrypted, expiry); err != nil {
		return "", fmt.Errorf("persist refreshed token: %w", err)
	}

	log.Info().
		Str("account_id", accountID.String()).
		Time("expiry", expiry).
		Msg("Access token refreshed")

	return accessToken, nil
}

// refreshAccessToken exchanges the long-lived refresh token for a new access token
func (c *Client) refreshAccessToken(ctx context.Context, refreshToken string) (string, time.Time, error) {
	form := url.Values{
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"refresh_token": {refreshToken},
		"grant_type":    {"refresh_token"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token request error: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", time.Time{}, classifyRequestError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", time.Time{}, apiError(resp)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", time.Time{}, fmt.Errorf("decode token response: %w", err)
	}

	if tok.AccessToken == "" {
		return "", time.Time{}, fmt.Errorf("token response missing access_token")
	}

	expiry := c.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return tok.AccessToken, expiry, nil
}
