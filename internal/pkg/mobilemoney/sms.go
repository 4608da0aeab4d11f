package mobilemoney

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrUnparsableSMS is returned when a relayed message does not look
	// like a mobile money confirmation at all
	ErrUnparsableSMS = errors.New("unparsable mobile money sms")

	receiptRe = regexp.MustCompile(`^([A-Z0-9]{8,12}) Confirmed\.`)
	amountRe  = regexp.MustCompile(`(?:Ksh|KES|TSh|USh)\s?([0-9][0-9,]*(?:\.[0-9]{2})?)`)
	accountRe = regexp.MustCompile(`(?i)for account ([A-Z0-9][A-Z0-9\-]*)`)
)

// SMSConfirmation is the payment outcome extracted from a relayed
// confirmation message
type SMSConfirmation struct {
	// Reference is the paybill account reference, i.e. the purchase's
	// transaction reference
	Reference string
	// Receipt is the provider's own receipt code
	Receipt string
	// Amount paid, in minor currency units
	Amount int64
}

// ParseSMS extracts a payment confirmation from the raw text of a relayed
// mobile money SMS. The relay device forwards every message it sees, so an
// unrecognized message is an expected outcome, not a server fault.
func ParseSMS(text string) (*SMSConfirmation, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrUnparsableSMS
	}

	receipt := receiptRe.FindStringSubmatch(text)
	if receipt == nil {
		return nil, ErrUnparsableSMS
	}

	account := accountRe.FindStringSubmatch(text)
	if account == nil {
		return nil, ErrUnparsableSMS
	}

	amountMatch := amountRe.FindStringSubmatch(text)
	if amountMatch == nil {
		return nil, ErrUnparsableSMS
	}

	amount, err := parseAmount(amountMatch[1])
	if err != nil {
		return nil, ErrUnparsableSMS
	}

	return &SMSConfirmation{
		Reference: strings.ToUpper(account[1]),
		Receipt:   receipt[1],
		Amount:    amount,
	}, nil
}

// parseAmount converts "1,500.00" to minor units (150000)
func parseAmount(raw string) (int64, error) {
	raw = strings.ReplaceAll(raw, ",", "")

	whole := raw
	cents := int64(0)
	if i := strings.IndexByte(raw, '.'); i >= 0 {
		whole = raw[:i]
		frac := raw[i+1:]
		if len(frac) != 2 {
			return 0, ErrUnparsableSMS
		}
		c, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, err
		}
		cents = c
	}

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, err
	}
	return units*100 + cents, nil
}
