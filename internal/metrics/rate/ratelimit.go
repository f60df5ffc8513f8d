package rate

import (
	"fmt"
	"strings"

	"pairwatch/internal/metrics"
	"pairwatch/logger"
)

// ReportRateLimitExceeded increments the rate limit exceeded counter for the given
// exchange and request type and emits the metric. Exchange, symbol and type
// are attached to the log entry.
func ReportRateLimitExceeded(log *logger.Log, exchange, symbol, dataType string) {
	component := fmt.Sprintf("%s_%s", strings.ToLower(exchange), strings.ToLower(dataType))
	fields := logger.Fields{
		"exchange": strings.ToLower(exchange),
		"symbol":   symbol,
		"type":     strings.ToLower(dataType),
	}
	metrics.EmitMetric(log, component, "rate_limit_exceeded", 1, "counter", fields)
	logOrDefault(log).WithComponent(component).WithFields(fields).Warn("rate limit exceeded")
}

// ReportIPBan increments the IP ban counter for the given exchange and request
// type and emits the metric.
func ReportIPBan(log *logger.Log, exchange, symbol, dataType string) {
	component := fmt.Sprintf("%s_%s", strings.ToLower(exchange), strings.ToLower(dataType))
	fields := logger.Fields{
		"exchange": strings.ToLower(exchange),
		"symbol":   symbol,
		"type":     strings.ToLower(dataType),
	}
	metrics.EmitMetric(log, component, "ip_ban", 1, "counter", fields)
	logOrDefault(log).WithComponent(component).WithFields(fields).Error("ip banned")
}

func logOrDefault(log *logger.Log) *logger.Log {
	if log == nil {
		return logger.GetLogger()
	}
	return log
}

// detectLimit inspects the message returned from an exchange and determines whether
// it signals a rate limit exceed or an IP ban. Each exchange uses different wording.
func detectLimit(exchange, msg string) (rateLimit bool, ipBan bool) {
	lowerMsg := strings.ToLower(msg)
	switch strings.ToLower(exchange) {
	case "binance":
		rateLimit = strings.Contains(lowerMsg, "too many requests") || strings.Contains(lowerMsg, "rate limit") || strings.Contains(lowerMsg, "code=-1003")
		ipBan = strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "ban")
	case "kucoin":
		rateLimit = strings.Contains(lowerMsg, "too many requests") || strings.Contains(lowerMsg, "rate limit")
		ipBan = strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "limit") && strings.Contains(lowerMsg, "triggered")
	case "bybit":
		ipBan = strings.Contains(lowerMsg, "ip rate limit") || (strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "ban"))
		rateLimit = !ipBan && (strings.Contains(lowerMsg, "rate limit") || strings.Contains(lowerMsg, "too many requests") || strings.Contains(lowerMsg, "too many visits"))
	default:
		rateLimit = strings.Contains(lowerMsg, "rate limit") || strings.Contains(lowerMsg, "too many requests")
		ipBan = strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "ban")
	}
	return
}

// ReportLimitFromError checks a request error for rate limit or IP ban wording
// and records the matching metrics. It returns true when either was detected.
func ReportLimitFromError(log *logger.Log, exchange, symbol, dataType string, err error) bool {
	if err == nil {
		return false
	}
	rateLimit, ipBan := detectLimit(exchange, err.Error())
	if rateLimit {
		ReportRateLimitExceeded(log, exchange, symbol, dataType)
	}
	if ipBan {
		ReportIPBan(log, exchange, symbol, dataType)
	}
	return rateLimit || ipBan
}
