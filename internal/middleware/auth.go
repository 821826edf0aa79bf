package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

type contextKey string

const actorKey contextKey = "requesting_actor"

var tokenParser = jwt.NewParser()

// ActorMiddleware records the DID of the account a request is made on behalf
// of. AppViews proxy getFeedSkeleton with an inter-service JWT whose iss
// claim is the viewer; the signature is not verified, so the DID is only
// used to personalize results, never to authorize.
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor := actorFromHeader(r.Header.Get("Authorization")); actor != "" {
			r = r.WithContext(WithRequestingActor(r.Context(), actor))
		}
		next.ServeHTTP(w, r)
	})
}

func actorFromHeader(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}

	claims := jwt.MapClaims{}
	if _, _, err := tokenParser.ParseUnverified(strings.TrimSpace(token), claims); err != nil {
		log.Debug().Err(err).Msg("middleware: ignoring malformed bearer token")
		return ""
	}
	iss, err := claims.GetIssuer()
	if err != nil || !strings.HasPrefix(iss, "did:") {
		return ""
	}
	// Service identities carry a fragment, e.g. did:plc:abc#atproto_labeler.
	did, _, _ := strings.Cut(iss, "#")
	return did
}

// WithRequestingActor returns a context carrying the requesting actor's DID.
func WithRequestingActor(ctx context.Context, did string) context.Context {
	return context.WithValue(ctx, actorKey, did)
}

// RequestingActor returns the requesting actor's DID, or "" for anonymous requests.
func RequestingActor(ctx context.Context) string {
	did, _ := ctx.Value(actorKey).(string)
	return did
}
