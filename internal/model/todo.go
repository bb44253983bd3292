package model

import (
	"strings"
	"time"
	"unicode/utf8"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// MaxTextLength caps the text of a single todo, in runes.
const MaxTextLength = 200

// Icons decorating each todo row.
var (
	NotDoneIcon = string(rune(0x1f7e0))
	DoneIcon    = string(rune(0x2705))
	DeleteIcon  = string(rune(0x274c))
)

// Todo is a single task record with text and completion state.
type Todo struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Done      bool      `json:"done"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Icon returns the decoration matching the done flag.
func (t Todo) Icon() string {
	if t.Done {
		return DoneIcon
	}
	return NotDoneIcon
}

// Equal reports whether both records hold the same values.
func (t Todo) Equal(o Todo) bool {
	return t.ID == o.ID && t.Text == o.Text && t.Done == o.Done &&
		t.CreatedAt.Equal(o.CreatedAt) && t.UpdatedAt.Equal(o.UpdatedAt)
}

// Validate checks the record before it is stored.
func (t Todo) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.ID, validation.Required),
		validation.Field(&t.Text, validation.Required, validation.By(maxRunes)),
	)
}

func maxRunes(v any) error {
	s, _ := v.(string)
	if utf8.RuneCountInString(s) > MaxTextLength {
		return validation.NewError("validation_text_too_long", "must be at most 200 characters")
	}
	return nil
}

// NormalizeText trims user input the way the add paths expect it.
func NormalizeText(s string) string {
	return strings.TrimSpace(s)
}

// Completed returns the records with Done set, preserving order.
func Completed(todos []Todo) []Todo {
	var out []Todo
	for _, t := range todos {
		if t.Done {
			out = append(out, t)
		}
	}
	return out
}

// Stats counts done and pending records.
func Stats(todos []Todo) (done, pending int) {
	for _, t := range todos {
		if t.Done {
			done++
		} else {
			pending++
		}
	}
	return
}
