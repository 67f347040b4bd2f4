package bot

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	activityLogMu  sync.Mutex
	activityLogDir = ""
)

// InitActivityLog enables per-user activity logs in dir. Logging stays off
// until this is called.
func InitActivityLog(dir string) error {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	activityLogMu.Lock()
	activityLogDir = dir
	activityLogMu.Unlock()
	return nil
}

func activityLogPath(userID int64) string {
	return filepath.Join(activityLogDir, fmt.Sprintf("activity_%d.log", userID))
}

// StartActivityLog truncates the user's activity log. Called when the artisan
// starts over with a new product.
func StartActivityLog(userID int64) {
	activityLogMu.Lock()
	defer activityLogMu.Unlock()
	if activityLogDir == "" {
		return
	}

	f, err := os.OpenFile(activityLogPath(userID), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		log.Error().Err(err).Int64("userID", userID).Msg("failed to start activity log")
		return
	}
	defer f.Close()

	fmt.Fprintf(f, "=== Activity Log ===\nUser: %d\nStarted: %s\n\n",
		userID, time.Now().Format("2006-01-02 15:04:05"))
}

func appendActivity(userID int64, prefix, msg string) {
	activityLogMu.Lock()
	defer activityLogMu.Unlock()
	if activityLogDir == "" {
		return
	}

	f, err := os.OpenFile(activityLogPath(userID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Error().Err(err).Int64("userID", userID).Msg("failed to write activity log")
		return
	}
	defer f.Close()

	fmt.Fprintf(f, "[%s] %s %s\n", time.Now().Format("15:04:05"), prefix, msg)
}

// LogUser logs a user message/action.
func LogUser(userID int64, format string, args ...any) {
	appendActivity(userID, "USER    ", fmt.Sprintf(format, args...))
}

// LogBot logs a bot response.
func LogBot(userID int64, format string, args ...any) {
	appendActivity(userID, "BOT     ", fmt.Sprintf(format, args...))
}

// LogAI logs a model call.
func LogAI(userID int64, format string, args ...any) {
	appendActivity(userID, "AI      ", fmt.Sprintf(format, args...))
}

// LogError logs errors.
func LogError(userID int64, format string, args ...any) {
	appendActivity(userID, "ERROR   ", fmt.Sprintf(format, args...))
}
