package utils

import (
	"strings"
)

// countryCodes lists known calling-code prefixes, longest prefixes first
var countryCodes = []string{
	"212", "213", "216", "218", "220", "221", "222", "223", "224", "225", "226", "227",
	"228", "229", "230", "231", "232", "233", "234", "235", "236", "237", "238", "239",
	"240", "241", "242", "243", "244", "245", "246", "248", "249", "250", "251", "252",
	"253", "254", "255", "256", "257", "258", "260", "261", "262", "263", "264", "265",
	"266", "267", "268", "269", "290", "291", "297", "298", "299", "350", "351", "352",
	"353", "354", "355", "356", "357", "358", "359", "370", "371", "372", "373", "374",
	"375", "376", "377", "378", "380", "381", "382", "383", "385", "386", "387", "389",
	"420", "421", "423", "500", "501", "502", "503", "504", "505", "506", "507", "508",
	"509", "590", "591", "592", "593", "594", "595", "596", "597", "598", "599", "670",
	"672", "673", "674", "675", "676", "677", "678", "679", "680", "681", "682", "683",
	"685", "686", "687", "688", "689", "690", "691", "692", "850", "852", "853", "855",
	"856", "880", "886", "960", "961", "962", "963", "964", "965", "966", "967", "968",
	"970", "971", "972", "973", "974", "975", "976", "977", "992", "993", "994", "995",
	"996", "998",
	"20", "27", "30", "31", "32", "33", "34", "39", "40", "41", "43", "44", "45", "46",
	"47", "48", "49", "51", "52", "53", "54", "55", "56", "57", "58", "60", "61", "62",
	"63", "64", "65", "66", "81", "82", "84", "86", "90", "91", "92", "93", "94", "95",
	"98",
	"1",
}

// Digits strips everything but 0-9
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CountryCode returns the known calling-code prefix of a digits-only number
func CountryCode(digits string) (string, bool) {
	for _, code := range countryCodes {
		if strings.HasPrefix(digits, code) {
			return code, true
		}
	}
	return "", false
}

// FormatToE164 normalizes a phone number to +<country><national>.
// Input already starting with "+" is returned unchanged. National numbers of
// up to eleven digits that do not start with defaultCountryCode get it
// prepended; longer numbers are assumed to carry their country code.
func FormatToE164(phone, defaultCountryCode string) string {
	phone = strings.TrimSpace(phone)
	if strings.HasPrefix(phone, "+") {
		return phone
	}
	digits := Digits(phone)
	if len(digits) < 10 {
		return "+" + defaultCountryCode + digits
	}
	if len(digits) <= 11 && !strings.HasPrefix(digits, defaultCountryCode) {
		return "+" + defaultCountryCode + digits
	}
	return "+" + digits
}

// FormatForGateway produces the digits-only form the gateways expect.
// An 11-digit national number gets the default country code prepended.
func FormatForGateway(phone, defaultCountryCode string) string {
	digits := Digits(phone)
	if len(digits) == 11 && !strings.HasPrefix(digits, defaultCountryCode) {
		return defaultCountryCode + digits
	}
	return digits
}

// StripWhatsAppPrefix removes the "whatsapp:" scheme Twilio puts on addresses
func StripWhatsAppPrefix(address string) string {
	return strings.TrimPrefix(strings.TrimSpace(address), "whatsapp:")
}

// SamePhone compares a stored phone against a target across raw, E.164,
// digits-only and last-8-digit representations.
func SamePhone(stored, target, defaultCountryCode string) bool {
	if stored == "" || target == "" {
		return false
	}
	formatted := FormatToE164(target, defaultCountryCode)
	if stored == target || stored == formatted {
		return true
	}

	storedDigits := Digits(stored)
	targetDigits := Digits(target)
	if storedDigits == "" {
		return false
	}
	if storedDigits == targetDigits || storedDigits == Digits(formatted) {
		return true
	}
	if len(storedDigits) > 8 && len(targetDigits) > 8 {
		return strings.HasSuffix(storedDigits, targetDigits[len(targetDigits)-8:]) ||
			strings.HasSuffix(targetDigits, storedDigits[len(storedDigits)-8:])
	}
	return false
}
