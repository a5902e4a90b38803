package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	ErrTokenFormat = errors.New("invalid token format")
	ErrTokenSig    = errors.New("invalid token signature")
	ErrTokenExp    = errors.New("token expired")
	ErrTokenConv   = errors.New("conversation id mismatch")
)

// GenerateVoiceToken mints the bearer token a client presents when
// opening the voice channel for a conversation.
// Format: base64url(conversation_id + "." + exp_unix + "." + hex(hmac_sha256(secret, conversation_id+"."+exp)))
func GenerateVoiceToken(secret, conversationID string, expUnix int64) string {
	msg := conversationID + "." + strconv.FormatInt(expUnix, 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(msg))
	sig := hex.EncodeToString(mac.Sum(nil))
	return base64.RawURLEncoding.EncodeToString([]byte(msg + "." + sig))
}

// ValidateVoiceToken checks signature, conversation binding and expiry
// (with skew tolerance). Returns the embedded conversation id and exp.
func ValidateVoiceToken(secret, token, expectConversationID string, now time.Time, skewSeconds int) (string, int64, error) {
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", 0, ErrTokenFormat
	}
	parts := strings.Split(string(b), ".")
	if len(parts) != 3 {
		return "", 0, ErrTokenFormat
	}
	cid, expStr, sigHex := parts[0], parts[1], parts[2]
	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return "", 0, ErrTokenFormat
	}
	if expectConversationID != "" && cid != expectConversationID {
		return "", 0, ErrTokenConv
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(cid + "." + expStr))
	want := mac.Sum(nil)
	got, err := hex.DecodeString(sigHex)
	if err != nil {
		return "", 0, ErrTokenFormat
	}
	if !hmac.Equal(want, got) {
		return "", 0, ErrTokenSig
	}

	skew := int64(skewSeconds)
	if now.Unix() > exp+skew {
		return "", 0, ErrTokenExp
	}
	return cid, exp, nil
}
