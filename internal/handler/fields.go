package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/openclaw/rendezvous-server-go/internal/errors"
)

// requestFields is the set of named fields any rendezvous route may read.
// Clients send them either as JSON body keys or as request headers; the body
// wins when both are present.
type requestFields struct {
	PCID           string      `json:"pc-id"`
	PCName         string      `json:"pc-name"`
	SmartphoneID   string      `json:"smartphone-id"`
	PairingCode    string      `json:"pairing_code"`
	ComparisonCode string      `json:"comparison_code"`
	Timeout        json.Number `json:"timeout"`
}

const (
	headerPCID           = "Pc-Id"
	headerPCName         = "Pc-Name"
	headerSmartphoneID   = "Smartphone-Id"
	headerPairingCode    = "Pairing-Code"
	headerComparisonCode = "Comparison-Code"
	headerAwaitTimeout   = "Await-Timeout"
)

func parseRequestFields(r *http.Request) (*requestFields, error) {
	var fields requestFields

	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil && !errors.Is(err, io.EOF) {
			return nil, apperrors.InvalidInput("body", "must be a JSON object")
		}
	}

	fromHeader(&fields.PCID, r, headerPCID)
	fromHeader(&fields.PCName, r, headerPCName)
	fromHeader(&fields.SmartphoneID, r, headerSmartphoneID)
	fromHeader(&fields.PairingCode, r, headerPairingCode)
	fromHeader(&fields.ComparisonCode, r, headerComparisonCode)
	if fields.Timeout == "" {
		fields.Timeout = json.Number(strings.TrimSpace(r.Header.Get(headerAwaitTimeout)))
	}

	return &fields, nil
}

func fromHeader(dst *string, r *http.Request, header string) {
	if *dst == "" {
		*dst = r.Header.Get(header)
	}
}

// awaitTimeout returns the caller's requested wait in seconds, or zero when
// none was given.
func (f *requestFields) awaitTimeout() (time.Duration, error) {
	if f.Timeout == "" {
		return 0, nil
	}
	seconds, err := strconv.ParseFloat(string(f.Timeout), 64)
	if err != nil || seconds <= 0 {
		return 0, apperrors.InvalidInput("timeout", "must be a positive number of seconds")
	}
	return time.Duration(seconds * float64(time.Second)), nil
}
