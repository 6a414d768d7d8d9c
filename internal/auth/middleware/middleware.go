package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

const tokenTTL = 8 * time.Hour

type AuthService struct {
	hmac      []byte
	adminUser string
	adminHash []byte
	devLogin  bool
	log       *zap.Logger
	now       func() time.Time
}

type Option func(*AuthService)

// WithAdmin enables the bcrypt-checked admin login.
func WithAdmin(user, bcryptHash string) Option {
	return func(a *AuthService) { a.adminUser, a.adminHash = user, []byte(bcryptHash) }
}

// WithDevLogin accepts username == password for non-admin roles.
func WithDevLogin(on bool) Option { return func(a *AuthService) { a.devLogin = on } }

func WithLogger(l *zap.Logger) Option { return func(a *AuthService) { a.log = l } }

func NewAuthService(secret string, opts ...Option) *AuthService {
	a := &AuthService{hmac: []byte(secret), log: zap.NewNop(), now: time.Now}
	for _, o := range opts {
		o(a)
	}
	return a
}

type Claims struct {
	Sub  string `json:"sub"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func (a *AuthService) IssueJWT(sub, role string) (string, error) {
	now := a.now()
	claims := &Claims{
		Sub:  sub,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    "mindengage-quiz",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(a.hmac)
}

var errBadToken = errors.New("invalid token")

func (a *AuthService) Parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return a.hmac, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	c, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || c.Sub == "" {
		return nil, errBadToken
	}
	return c, nil
}

var devRoles = map[string]bool{"student": true, "teacher": true, "editor": true}

// authenticate returns the role granted to the credentials, or "".
func (a *AuthService) authenticate(username, password, role string) string {
	if a.adminUser != "" && username == a.adminUser {
		if bcrypt.CompareHashAndPassword(a.adminHash, []byte(password)) == nil {
			return "admin"
		}
		return ""
	}
	if a.devLogin && username != "" && username == password && devRoles[role] {
		return role
	}
	return ""
}

// LoginHandler serves POST /auth/login {"username","password","role"}.
func LoginHandler(a *AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
			Role     string `json:"role"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		role := a.authenticate(req.Username, req.Password, req.Role)
		if role == "" {
			a.log.Info("login rejected", zap.String("user", req.Username))
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		tok, err := a.IssueJWT(req.Username, role)
		if err != nil {
			a.log.Error("issue token", zap.Error(err))
			http.Error(w, "issue token", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": tok, "role": role})
	}
}

// JWTMiddleware rejects requests without a valid bearer token and puts the
// token's actor in the request context.
func JWTMiddleware(a *AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if !strings.HasPrefix(h, "Bearer ") {
				http.Error(w, "missing bearer", http.StatusUnauthorized)
				return
			}
			c, err := a.Parse(strings.TrimPrefix(h, "Bearer "))
			if err != nil {
				http.Error(w, "bad token", http.StatusUnauthorized)
				return
			}
			ctx := rbac.WithActor(r.Context(), rbac.Actor{ID: c.Sub, Role: c.Role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
