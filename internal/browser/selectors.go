// File: internal/browser/selectors.go
package browser

import "fmt"

// Logical element names. Handlers and login routines refer to elements by
// these keys only; the CSS lives in the selector table below.
const (
	SelServerError   = "server_error"
	SelSMSTimer      = "sms_timer"
	SelSubmitButton  = "submit_button"
	SelResetButton   = "reset_button"
	SelCancelButton  = "cancel_button"
	SelResendButton  = "resend_button"
	SelPhoneInput    = "phone_input"
	SelSMSCodeInput  = "sms_code_input"
	SelPasswordInput = "password_input"
	// SelPinInput is a pattern; the digit index is substituted in.
	SelPinInput  = "pin_input"
	SelFormTitle = "form_title"
	SelExport    = "export_button"
	SelExportCSV = "export_csv_item"
)

// Selectors is the versioned table of CSS selectors keyed by logical element
// name. UI drift on the bank's side requires exactly one edit point here (or
// an override in the config file).
type Selectors map[string]string

// DefaultSelectors returns the selector set matching the bank UI this
// release was written against.
func DefaultSelectors() Selectors {
	return Selectors{
		SelServerError:   `p[automation-id="server-error"]`,
		SelSMSTimer:      `span[automation-id="left-time"]`,
		SelSubmitButton:  `button[automation-id="button-submit"]`,
		SelResetButton:   `button[automation-id="reset-button"]`,
		SelCancelButton:  `button[automation-id="cancel-button"]`,
		SelResendButton:  `button[automation-id="resend-button"]`,
		SelPhoneInput:    `input[name="phone"]`,
		SelSMSCodeInput:  `input[automation-id="otp-input"]`,
		SelPasswordInput: `input[automation-id="password-input"]`,
		SelPinInput:      `input[automation-id="pin-code-input-%d"]`,
		SelFormTitle:     `[automation-id="form-title"]`,
		SelExport:        `[data-qa-id="export"]`,
		SelExportCSV:     `//span[text()="Выгрузить все операции в CSV"]`,
	}
}

// MergeSelectors overlays config-supplied overrides onto the defaults.
func MergeSelectors(overrides map[string]string) Selectors {
	sel := DefaultSelectors()
	for name, css := range overrides {
		if css != "" {
			sel[name] = css
		}
	}
	return sel
}

// Get returns the selector for a logical element name. Unknown names panic:
// they are programming errors, not runtime conditions.
func (s Selectors) Get(name string) string {
	css, ok := s[name]
	if !ok {
		panic(fmt.Sprintf("browser: no selector registered for element %q", name))
	}
	return css
}

// Pin returns the selector for the i-th quick-login PIN digit input.
func (s Selectors) Pin(i int) string {
	return fmt.Sprintf(s.Get(SelPinInput), i)
}
