package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
)

var (
	AppLogger     *log.Logger
	CaptureLogger *log.Logger
	ErrorLogger   *log.Logger

	logLevel       string
	appLogFile     *os.File
	captureLogFile *os.File
	initialized    bool
)

// InitGlobalLoggers opens the application and capture log files. The capture
// logger carries per-request pipeline chatter; the app logger everything else.
// Errors always also go to stderr.
func InitGlobalLoggers(appLogPath, captureLogPath, level string) error {
	if initialized && appLogFile != nil && captureLogFile != nil && strings.ToUpper(level) == logLevel {
		return nil
	}
	if appLogFile != nil {
		appLogFile.Close()
		appLogFile = nil
	}
	if captureLogFile != nil {
		captureLogFile.Close()
		captureLogFile = nil
	}

	logLevel = strings.ToUpper(level)
	if logLevel == "" {
		logLevel = "INFO"
	}

	ErrorLogger = log.New(os.Stderr, "ERROR: ", log.Ldate|log.Ltime|log.Lshortfile)

	AppLogger = log.New(openLogWriter(appLogPath, &appLogFile), "APP: ", log.Ldate|log.Ltime|log.Lshortfile)
	CaptureLogger = log.New(openLogWriter(captureLogPath, &captureLogFile), "CAPTURE: ", log.Ldate|log.Ltime|log.Lshortfile)

	if !initialized {
		AppLogger.Printf("App logger initialized. Log level: %s. Output file: %s", logLevel, appLogPath)
	}
	initialized = true
	return nil
}

func openLogWriter(path string, file **os.File) io.Writer {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		ErrorLogger.Printf("Failed to create log directory %s: %v. Logs will be discarded.", dir, err)
		return io.Discard
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
	if err != nil {
		ErrorLogger.Printf("Failed to open log file %s: %v. Logs will be discarded.", path, err)
		return io.Discard
	}
	*file = f
	return f
}

func Info(format string, v ...interface{}) {
	if AppLogger != nil && (logLevel == "INFO" || logLevel == "DEBUG") {
		AppLogger.Printf(format, v...)
	}
}

func Debug(format string, v ...interface{}) {
	if AppLogger != nil && logLevel == "DEBUG" {
		AppLogger.Printf(format, v...)
	}
}

func Error(format string, v ...interface{}) {
	message := fmt.Sprintf(format, v...)
	if ErrorLogger != nil {
		ErrorLogger.Print(message)
	}
	if AppLogger != nil && appLogFile != nil {
		AppLogger.Print(message)
	}
}

func Fatal(format string, v ...interface{}) {
	message := fmt.Sprintf(format, v...)
	if ErrorLogger != nil {
		ErrorLogger.Fatal(message)
	} else {
		log.Fatal(message)
	}
}

func CaptureInfo(format string, v ...interface{}) {
	if CaptureLogger != nil && (logLevel == "INFO" || logLevel == "DEBUG") {
		CaptureLogger.Printf(format, v...)
	}
}

func CaptureDebug(format string, v ...interface{}) {
	if CaptureLogger != nil && logLevel == "DEBUG" {
		CaptureLogger.Printf(format, v...)
	}
}

func CaptureError(format string, v ...interface{}) {
	message := fmt.Sprintf(format, v...)
	if ErrorLogger != nil {
		ErrorLogger.Print(message)
	}
	if CaptureLogger != nil && captureLogFile != nil {
		CaptureLogger.Print(message)
	}
}

func CloseLogFiles() {
	if appLogFile != nil {
		AppLogger.Println("Closing app log file.")
		appLogFile.Close()
		appLogFile = nil
	}
	if captureLogFile != nil {
		CaptureLogger.Println("Closing capture log file.")
		captureLogFile.Close()
		captureLogFile = nil
	}
	initialized = false
}
