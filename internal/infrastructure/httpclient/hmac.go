package httpclient

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

type HMACSignature struct {
	ClientID     string
	ClientSecret string
}

func NewHMACSignature(clientID, clientSecret string) *HMACSignature {
	return &HMACSignature{
		ClientID:     clientID,
		ClientSecret: clientSecret,
	}
}

// GenerateSignature generates an HMAC-SHA256 signature over
// "date: {date}\n{method} {path} HTTP/1.1"
func (h *HMACSignature) GenerateSignature(method, fullURL string, date time.Time) (authHeader string, dateHeader string, err error) {
	parsedURL, err := url.Parse(fullURL)
	if err != nil {
		return "", "", fmt.Errorf("failed to parse URL: %w", err)
	}

	requestPath := parsedURL.Path
	if parsedURL.RawQuery != "" {
		requestPath = requestPath + "?" + parsedURL.RawQuery
	}

	dateHeader = date.UTC().Format(http.TimeFormat)
	signature := h.sign(dateHeader, method, requestPath)

	authHeader = fmt.Sprintf(`hmac username="%s", algorithm="hmac-sha256", headers="date request-line", signature="%s"`,
		h.ClientID, signature)

	return authHeader, dateHeader, nil
}

func (h *HMACSignature) sign(dateHeader, method, requestPath string) string {
	payload := fmt.Sprintf("date: %s\n%s %s HTTP/1.1", dateHeader, method, requestPath)
	mac := hmac.New(sha256.New, []byte(h.ClientSecret))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// SignRequest signs an HTTP request with HMAC-SHA256 signature
func (h *HMACSignature) SignRequest(req *http.Request, now time.Time) error {
	authHeader, dateHeader, err := h.GenerateSignature(req.Method, req.URL.String(), now)
	if err != nil {
		return err
	}

	req.Header.Set("Date", dateHeader)
	req.Header.Set("Authorization", authHeader)

	return nil
}

// Verify checks the Authorization header of a received request, as a
// subscriber would.
func (h *HMACSignature) Verify(req *http.Request) bool {
	want := fmt.Sprintf(`hmac username="%s", algorithm="hmac-sha256", headers="date request-line", signature="%s"`,
		h.ClientID, h.sign(req.Header.Get("Date"), req.Method, req.URL.RequestURI()))
	return hmac.Equal([]byte(want), []byte(req.Header.Get("Authorization")))
}
