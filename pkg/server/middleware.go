package server

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/soulnet-ai/soulnet-go/pkg/auth"
)

const userContextKey = "soulnet/user"

// currentUser returns the authenticated user set by requireAuth.
func currentUser(c echo.Context) *auth.User {
	user, _ := c.Get(userContextKey).(*auth.User)
	return user
}

// requireAuth validates the bearer token on every request and stores the
// resolved user in the request context.
func (s *Server) requireAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := auth.BearerToken(c.Request().Header.Get("Authorization"))
			if token == "" {
				return c.JSON(http.StatusUnauthorized, errorResponse("Missing token"))
			}

			user, err := s.validator.Validate(c.Request().Context(), token)
			if err != nil {
				if errors.Is(err, auth.ErrInvalidToken) {
					return c.JSON(http.StatusUnauthorized, errorResponse("Invalid token"))
				}
				s.logger.Error("token validation failed", slog.Any("error", err))
				return c.JSON(http.StatusUnauthorized, errorResponse("Unauthorized"))
			}

			c.Set(userContextKey, user)
			return next(c)
		}
	}
}

// rateLimiter keeps one token bucket per user.
type rateLimiter struct {
	mu     sync.Mutex
	limits map[string]*rate.Limiter
	rate   rate.Limit
	burst  int
}

func newRateLimiter(perSecond float64, burst int) *rateLimiter {
	if perSecond <= 0 {
		perSecond = 10
	}
	if burst <= 0 {
		burst = 20
	}
	return &rateLimiter{
		limits: make(map[string]*rate.Limiter),
		rate:   rate.Limit(perSecond),
		burst:  burst,
	}
}

func (rl *rateLimiter) allow(key string) bool {
	rl.mu.Lock()
	limiter, ok := rl.limits[key]
	if !ok {
		limiter = rate.NewLimiter(rl.rate, rl.burst)
		rl.limits[key] = limiter
	}
	rl.mu.Unlock()
	return limiter.Allow()
}

// rateLimit rejects requests over the per-user quota. It runs after
// requireAuth so the key is always a user id.
func (s *Server) rateLimit(limiter *rateLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user := currentUser(c)
			if user != nil && !limiter.allow(user.ID) {
				return c.JSON(http.StatusTooManyRequests, errorResponse("Too many requests"))
			}
			return next(c)
		}
	}
}

// requestLogger logs one line per request with a generated request id.
func (s *Server) requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := uuid.NewString()
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			s.logger.Info("request",
				slog.String("request_id", requestID),
				slog.String("method", c.Request().Method),
				slog.String("path", c.Request().URL.Path),
				slog.Int("status", c.Response().Status),
				slog.Duration("duration", time.Since(start)),
			)
			return nil
		}
	}
}
