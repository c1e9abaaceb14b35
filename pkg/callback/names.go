package callback

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Callback option names raised by the upload engine.
const (
	OnAllComplete            = "onAllComplete"
	OnAutoRetry              = "onAutoRetry"
	OnCancel                 = "onCancel"
	OnComplete               = "onComplete"
	OnDelete                 = "onDelete"
	OnDeleteComplete         = "onDeleteComplete"
	OnError                  = "onError"
	OnManualRetry            = "onManualRetry"
	OnPasteReceived          = "onPasteReceived"
	OnProgress               = "onProgress"
	OnResume                 = "onResume"
	OnSessionRequestComplete = "onSessionRequestComplete"
	OnStatusChange           = "onStatusChange"
	OnSubmit                 = "onSubmit"
	OnSubmitDelete           = "onSubmitDelete"
	OnSubmitted              = "onSubmitted"
	OnTotalProgress          = "onTotalProgress"
	OnUpload                 = "onUpload"
	OnUploadChunk            = "onUploadChunk"
	OnUploadChunkSuccess     = "onUploadChunkSuccess"
	OnValidate               = "onValidate"
	OnValidateBatch          = "onValidateBatch"
)

// All lists every callback option name.
var All = []string{
	OnAllComplete, OnAutoRetry, OnCancel, OnComplete, OnDelete,
	OnDeleteComplete, OnError, OnManualRetry, OnPasteReceived, OnProgress,
	OnResume, OnSessionRequestComplete, OnStatusChange, OnSubmit,
	OnSubmitDelete, OnSubmitted, OnTotalProgress, OnUpload, OnUploadChunk,
	OnUploadChunkSuccess, OnValidate, OnValidateBatch,
}

// Chained lists the callbacks whose handlers may return promises and whose
// results the engine waits on.
var Chained = []string{
	OnCancel, OnPasteReceived, OnResume, OnSubmit, OnSubmitDelete,
	OnUpload, OnUploadChunk, OnValidate, OnValidateBatch,
}

// IsChained reports whether name (short or option form) runs in chained mode.
func IsChained(name string) bool {
	return slices.Contains(Chained, OptionName(name))
}

// Classify is the default Classifier backed by the Chained list.
func Classify(name string) Mode {
	if IsChained(name) {
		return ModeChained
	}
	return ModeSync
}

// OptionName converts a short event name to its option form:
// "submit" -> "onSubmit". Option names are returned unchanged.
func OptionName(event string) string {
	if isOptionName(event) || event == "" {
		return event
	}
	r, size := utf8.DecodeRuneInString(event)
	return "on" + string(unicode.ToUpper(r)) + event[size:]
}

// EventName converts an option name to its short form:
// "onSubmit" -> "submit". Short names are returned unchanged.
func EventName(option string) string {
	if !isOptionName(option) {
		return option
	}
	rest := strings.TrimPrefix(option, "on")
	r, size := utf8.DecodeRuneInString(rest)
	return string(unicode.ToLower(r)) + rest[size:]
}

func isOptionName(s string) bool {
	if !strings.HasPrefix(s, "on") || len(s) < 3 {
		return false
	}
	r, _ := utf8.DecodeRuneInString(s[2:])
	return unicode.IsUpper(r)
}
