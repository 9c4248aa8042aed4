package http

import (
	"errors"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/golang-jwt/jwt/v5/request"
)

// getJwtAuthMiddleware protects admin routes. Unlike the public
// evaluation endpoints, these require a valid bearer token signed with
// the server's key.
func getJwtAuthMiddleware(jwtKey []byte) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			token, err := request.BearerExtractor{}.ExtractToken(r)
			if err != nil {
				if errors.Is(err, request.ErrNoTokenInRequest) {
					writeJsonErrorResponse(w, "authorization required",
						http.StatusUnauthorized, "unauthorized")
					return
				}
				writeJsonErrorResponse(w, err.Error(),
					http.StatusUnauthorized, "unauthorized")
				return
			}

			_, err = jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, errors.New("unexpected signing method")
				}
				return jwtKey, nil
			})
			if err != nil {
				writeJsonErrorResponse(w, "invalid token",
					http.StatusUnauthorized, "unauthorized")
				return
			}

			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(hfn)
	}
}
