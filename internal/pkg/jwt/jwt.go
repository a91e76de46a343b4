package jwt

import (
	"errors"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

type TriggerClaims struct {
	JobID   string `json:"job_id"`
	JobUUID string `json:"job_uuid"`
	jwtlib.RegisteredClaims
}

// GenerateTriggerToken signs a token that can start exactly one job. A zero ttl never expires.
func GenerateTriggerToken(jobID, jobUUID string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := TriggerClaims{
		JobID:   jobID,
		JobUUID: jobUUID,
		RegisteredClaims: jwtlib.RegisteredClaims{
			IssuedAt: jwtlib.NewNumericDate(now),
			Subject:  jobID,
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwtlib.NewNumericDate(now.Add(ttl))
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func ParseTriggerToken(tokenString string, secret []byte) (*TriggerClaims, error) {
	token, err := jwtlib.ParseWithClaims(tokenString, &TriggerClaims{}, func(token *jwtlib.Token) (interface{}, error) {
		if token.Method.Alg() != jwtlib.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*TriggerClaims)
	if !ok || !token.Valid || claims.JobID == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
