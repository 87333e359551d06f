package middlewares

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"civicspot/apperr"
	"civicspot/models"
	"civicspot/utils"
)

const (
	actorKey  = "actor"
	userIDKey = "user_id"

	lookupTimeout = 3 * time.Second
)

var errInvalidClaims = errors.New("invalid token claims")

// UserFinder resolves the user named by a token.
type UserFinder interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
}

type Auth struct {
	secret []byte
	users  UserFinder
}

func NewAuth(secret string, users UserFinder) *Auth {
	return &Auth{secret: []byte(secret), users: users}
}

// Required rejects requests without a valid token for an active user and
// stores the caller's actor on the context.
func (a *Auth) Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			utils.Abort(c, http.StatusUnauthorized, "Not authorized. Please login to access this resource.")
			return
		}

		userID, err := a.parse(tokenString)
		if err != nil {
			utils.Abort(c, http.StatusUnauthorized, "Invalid or expired token. Please login again.")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), lookupTimeout)
		defer cancel()
		user, err := a.users.FindByID(ctx, userID)
		if err != nil {
			if apperr.Is(err, apperr.KindNotFound) {
				utils.Abort(c, http.StatusUnauthorized, "User not found. Please login again.")
				return
			}
			log.WithError(err).Error("auth user lookup failed")
			utils.Abort(c, http.StatusInternalServerError, "Server error in authentication")
			return
		}
		if !user.IsActive {
			utils.Abort(c, http.StatusUnauthorized, "Your account has been deactivated.")
			return
		}

		SetActor(c, models.Actor{ID: user.ID, Role: user.Role})
		c.Next()
	}
}

// RequireAdmin must run after Required.
func (a *Auth) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok || !actor.IsAdmin() {
			utils.Abort(c, http.StatusForbidden, "Access denied. Admin privileges required.")
			return
		}
		c.Next()
	}
}

func SetActor(c *gin.Context, actor models.Actor) {
	c.Set(actorKey, actor)
	c.Set(userIDKey, actor.ID.Hex())
}

func ActorFrom(c *gin.Context) (models.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return models.Actor{}, false
	}
	actor, ok := v.(models.Actor)
	return actor, ok
}

func (a *Auth) parse(tokenString string) (primitive.ObjectID, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return primitive.NilObjectID, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return primitive.NilObjectID, errInvalidClaims
	}
	id, _ := claims["id"].(string)
	if id == "" {
		id, _ = claims["user_id"].(string)
	}
	return primitive.ObjectIDFromHex(id)
}

// extractToken prefers the Authorization header and falls back to the
// token cookie.
func extractToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	token, err := c.Cookie("token")
	if err != nil {
		return ""
	}
	return token
}
