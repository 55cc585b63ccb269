package transaction

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/kakeibo/internal/model"
)

// 金額の制約。NUMERIC(14,2)に収まる範囲。
var (
	minAmount = decimal.New(1, -2)
	maxAmount = decimal.RequireFromString("999999999999.99")
)

// dateLayout はAPIで受け付ける日付の書式。
const dateLayout = "2006-01-02"

// validator は入力違反を収集する。
// 最初の違反で打ち切らず、すべての違反を1つのValidationErrorにまとめる。
type validator struct {
	msgs []string
}

func (v *validator) add(format string, args ...any) {
	v.msgs = append(v.msgs, fmt.Sprintf(format, args...))
}

// err は違反があればValidationErrorを、なければnilを返す。
func (v *validator) err() error {
	if len(v.msgs) == 0 {
		return nil
	}
	return model.NewValidationError(v.msgs...)
}

// transactionType は種別を検証する。
func (v *validator) transactionType(raw string) model.TransactionType {
	t := model.TransactionType(strings.TrimSpace(raw))
	switch {
	case t == "":
		v.add("Type is required")
	case !t.Valid():
		v.add("Type must be one of: %s", joinTypes())
	}
	return t
}

// amount は金額を検証し、小数2桁に丸めた値を返す。
func (v *validator) amount(raw *decimal.Decimal) decimal.Decimal {
	if raw == nil {
		v.add("Amount is required")
		return decimal.Zero
	}
	a := raw.Round(2)
	switch {
	case a.LessThan(minAmount):
		v.add("Amount must be greater than 0")
	case a.GreaterThan(maxAmount):
		v.add("Amount must not exceed %s", maxAmount.StringFixed(2))
	}
	return a
}

// category はカテゴリを検証する。
func (v *validator) category(raw string) model.Category {
	c := model.Category(strings.TrimSpace(raw))
	switch {
	case c == "":
		v.add("Category is required")
	case !c.Valid():
		v.add("Category must be one of: %s", joinCategories())
	}
	return c
}

// date は日付を検証し、UTCの0時に正規化した値を返す。
func (v *validator) date(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		v.add("Date is required")
		return time.Time{}
	}
	d, ok := parseDate(raw)
	if !ok {
		v.add("Date must be a valid date (YYYY-MM-DD)")
	}
	return d
}

// note は前後の空白を除いたメモの長さを検証する。
// 本文は加工せずそのまま保存する（出力時のエスケープはJSONエンコーダが行う）。
func (v *validator) note(raw string) string {
	note := strings.TrimSpace(raw)
	if utf8.RuneCountInString(note) > model.MaxNoteLength {
		v.add("Note cannot exceed %d characters", model.MaxNoteLength)
	}
	return note
}

// parseDate はYYYY-MM-DDまたはRFC3339の文字列をUTCの日付に変換する。
func parseDate(raw string) (time.Time, bool) {
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		y, m, d := t.UTC().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

func joinTypes() string {
	s := make([]string, len(model.TransactionTypes))
	for i, t := range model.TransactionTypes {
		s[i] = string(t)
	}
	return strings.Join(s, ", ")
}

func joinCategories() string {
	s := make([]string, len(model.Categories))
	for i, c := range model.Categories {
		s[i] = string(c)
	}
	return strings.Join(s, ", ")
}
