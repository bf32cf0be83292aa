// Package i18n holds the user-facing strings of the relay: notification texts
// and the short reasons carried by failure events.
package i18n

import "fmt"

// Message keys
const (
	NotifyConnectionRequest   = "notify.connection_request"
	NotifyConnectionAccepted  = "notify.connection_accepted"
	NotifyConnectionRejected  = "notify.connection_rejected"
	NotifyConnectionCancelled = "notify.connection_cancelled"

	ReasonValidation        = "reason.validation"
	ReasonDuplicateRequest  = "reason.duplicate_request"
	ReasonRejectionLimit    = "reason.rejection_limit"
	ReasonNotFound          = "reason.not_found"
	ReasonForbidden         = "reason.forbidden"
	ReasonInvalidTransition = "reason.invalid_transition"
	ReasonUnauthenticated   = "reason.unauthenticated"
	ReasonTimeout           = "reason.timeout"
	ReasonRateLimited       = "reason.rate_limited"
	ReasonInternal          = "reason.internal"
)

var catalogs = map[string]map[string]string{
	"en": {
		NotifyConnectionRequest:   "%s sent you a roommate connection request",
		NotifyConnectionAccepted:  "%s accepted your connection request",
		NotifyConnectionRejected:  "%s declined your connection request",
		NotifyConnectionCancelled: "%s withdrew their connection request",

		ReasonValidation:        "Some required information is missing or invalid",
		ReasonDuplicateRequest:  "You already have an open or accepted request with this person for this listing",
		ReasonRejectionLimit:    "This person has declined your requests for this listing too many times",
		ReasonNotFound:          "The requested item no longer exists",
		ReasonForbidden:         "You are not allowed to do that",
		ReasonInvalidTransition: "This request has already been answered",
		ReasonUnauthenticated:   "Please sign in again",
		ReasonTimeout:           "The server took too long to respond, please try again",
		ReasonRateLimited:       "You are sending too fast, slow down",
		ReasonInternal:          "Something went wrong, please try again",
	},
	"vi": {
		NotifyConnectionRequest:   "%s đã gửi cho bạn lời mời ở ghép",
		NotifyConnectionAccepted:  "%s đã chấp nhận lời mời kết nối của bạn",
		NotifyConnectionRejected:  "%s đã từ chối lời mời kết nối của bạn",
		NotifyConnectionCancelled: "%s đã hủy lời mời kết nối",

		ReasonValidation:        "Thiếu thông tin bắt buộc hoặc thông tin không hợp lệ",
		ReasonDuplicateRequest:  "Bạn đã có lời mời đang chờ hoặc đã được chấp nhận cho bài đăng này",
		ReasonRejectionLimit:    "Người này đã từ chối lời mời của bạn quá nhiều lần cho bài đăng này",
		ReasonNotFound:          "Mục bạn yêu cầu không còn tồn tại",
		ReasonForbidden:         "Bạn không có quyền thực hiện thao tác này",
		ReasonInvalidTransition: "Lời mời này đã được phản hồi",
		ReasonUnauthenticated:   "Vui lòng đăng nhập lại",
		ReasonTimeout:           "Máy chủ phản hồi quá lâu, vui lòng thử lại",
		ReasonRateLimited:       "Bạn thao tác quá nhanh, vui lòng chậm lại",
		ReasonInternal:          "Đã có lỗi xảy ra, vui lòng thử lại",
	},
}

// Catalog resolves message keys for one locale, falling back to English
type Catalog struct {
	locale  string
	entries map[string]string
}

// New returns the catalog for locale, or English when the locale is unknown
func New(locale string) *Catalog {
	entries, ok := catalogs[locale]
	if !ok {
		locale = "en"
		entries = catalogs["en"]
	}
	return &Catalog{locale: locale, entries: entries}
}

// Locale returns the resolved locale
func (c *Catalog) Locale() string {
	return c.locale
}

// Text formats the message for key with args
func (c *Catalog) Text(key string, args ...interface{}) string {
	format, ok := c.entries[key]
	if !ok {
		format, ok = catalogs["en"][key]
	}
	if !ok {
		return key
	}
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
