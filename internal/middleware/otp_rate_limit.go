package middleware

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const otpRateWindow = time.Minute

// OTPRateLimit limits OTP sends per identifier (or client IP when the body
// names none) using a fixed one-minute Redis counter. It fails open when
// Redis is unavailable.
func OTPRateLimit(cache *redis.Client, maxPerMin int, logger *slog.Logger) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 5
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}

		var req struct {
			Identifier  string `json:"identifier"`
			PhoneNumber string `json:"phoneNumber"`
			Email       string `json:"email"`
		}
		// An unparseable body is limited by client IP; the handler rejects it afterwards.
		if err := c.BodyParser(&req); err != nil {
			logger.DebugContext(c.UserContext(), "otp rate limit keyed by ip", slog.Any("error", err))
		}

		subjectKey := firstNonEmpty(req.Identifier, req.PhoneNumber, req.Email)
		if subjectKey == "" {
			subjectKey = "ip:" + c.IP()
		}
		key := "rl:otp:" + strings.ToLower(subjectKey)

		ctx := c.UserContext()
		cnt, err := cache.Incr(ctx, key).Result()
		if err != nil {
			logger.Warn("otp rate limit unavailable", slog.Any("error", err))
			return c.Next()
		}
		if cnt == 1 {
			cache.Expire(ctx, key, otpRateWindow)
		}
		if cnt > int64(maxPerMin) {
			retry := otpRateWindow
			if ttl, err := cache.TTL(ctx, key).Result(); err == nil && ttl > 0 {
				retry = ttl
			}
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(retry.Round(time.Second).Seconds())))
			return fiber.NewError(fiber.StatusTooManyRequests, "too many otp requests, try again later")
		}
		return c.Next()
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
