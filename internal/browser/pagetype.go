// File: internal/browser/pagetype.go
package browser

import (
	"fmt"
	"strings"
)

// PageType classifies the currently rendered bank page among the fixed set
// of known login and landing states.
type PageType int

const (
	PageUnknown PageType = iota
	// PageSMSOffer is the default "we will send you an SMS code" screen.
	// It has no renderable template; the router always auto-declines it.
	PageSMSOffer
	// PageSMSCode asks for the confirmation code already sent by SMS.
	PageSMSCode
	// PagePhone is the login root asking for a phone number.
	PagePhone
	// PagePassword asks for the account password.
	PagePassword
	// PageCreateOTP asks the user to invent a new 4-digit quick-login PIN.
	PageCreateOTP
	// PageOTP asks for the existing 4-digit quick-login PIN.
	PageOTP
	// PageControlQuestions is a security-question interstitial that
	// occasionally appears mid-flow. Auto-skipped, never rendered.
	PageControlQuestions
	// PageExpenses is the authenticated events-feed landing page.
	PageExpenses
)

// pageMatch binds a page type to the substring expected in its rendered
// content. Classification tests candidates in this exact order; the match
// strings are mutually exclusive substrings by construction, so first match
// wins. The table is data: when the bank reworks its copy, this is the one
// place to edit.
type pageMatch struct {
	Type  PageType
	Match string
}

var pageMatches = []pageMatch{
	{PageSMSOffer, "Мы отправим вам СМС-код"},
	{PageSMSCode, "Отправили код подтверждения"},
	{PagePhone, "Вход в Т‑Банк"},
	{PagePassword, "Пароль"},
	{PageCreateOTP, "Придумайте код"},
	{PageOTP, "Введите код для быстрого входа"},
	{PageControlQuestions, "Контрольные вопросы"},
	{PageExpenses, "Расходы"},
}

var pageNames = map[PageType]string{
	PageUnknown:          "UNKNOWN",
	PageSMSOffer:         "LOGIN_SMS_CODE",
	PageSMSCode:          "LOGIN_INPUT_SMS_CODE",
	PagePhone:            "LOGIN_PHONE",
	PagePassword:         "LOGIN_PASSWORD",
	PageCreateOTP:        "LOGIN_CREATE_OTP",
	PageOTP:              "LOGIN_OTP",
	PageControlQuestions: "CONTROL_QUESTIONS",
	PageExpenses:         "EXPENSES",
}

// templateIDs maps renderable page types to the frontend view identifier.
// Interstitial types are deliberately absent: they are auto-advanced by the
// router and must never be shown to the caller.
var templateIDs = map[PageType]string{
	PageSMSCode:   "tinkoff/sms_code",
	PagePhone:     "tinkoff/login_phone",
	PagePassword:  "tinkoff/login_password",
	PageCreateOTP: "tinkoff/create_otp",
	PageOTP:       "tinkoff/login_otp",
	PageExpenses:  "tinkoff/expenses",
}

func (t PageType) String() string {
	if name, ok := pageNames[t]; ok {
		return name
	}
	return fmt.Sprintf("PageType(%d)", int(t))
}

// TemplateID returns the response-template identifier for t. The second
// result is false for interstitial types, which have nothing to render.
func (t PageType) TemplateID() (string, bool) {
	id, ok := templateIDs[t]
	return id, ok
}

// Interstitial reports whether t is auto-advanced by a skip routine rather
// than driven by user input.
func (t PageType) Interstitial() bool {
	return t == PageSMSOffer || t == PageControlQuestions
}

// ParsePageType resolves the wire name of a page type (as returned to API
// clients) back into its value.
func ParsePageType(name string) (PageType, error) {
	for t, n := range pageNames {
		if n == name && t != PageUnknown {
			return t, nil
		}
	}
	return PageUnknown, fmt.Errorf("unknown page type %q", name)
}

// matchPage maps rendered page content to a page type, first match wins.
func matchPage(content string) (PageType, bool) {
	for _, pm := range pageMatches {
		if strings.Contains(content, pm.Match) {
			return pm.Type, true
		}
	}
	return PageUnknown, false
}
