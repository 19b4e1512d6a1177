package appointments

import (
	"strings"
)

// Status is the lifecycle state of an appointment, stored as its string value.
type Status string

const (
	StatusPending    Status = "Pendiente"
	StatusConfirmed  Status = "Confirmada"
	StatusPaid       Status = "Pagada"
	StatusInProgress Status = "EnProgreso"
	StatusCompleted  Status = "Completada"
	StatusCancelled  Status = "Cancelada"
	StatusNoShow     Status = "NoAsistio"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusPending,
	StatusConfirmed,
	StatusPaid,
	StatusInProgress,
	StatusCompleted,
	StatusCancelled,
	StatusNoShow,
}

// ParseStatus resolves a status name case-insensitively.
func ParseStatus(raw string) (Status, error) {
	name := strings.TrimSpace(raw)
	for _, s := range AllStatuses {
		if strings.EqualFold(string(s), name) {
			return s, nil
		}
	}
	return "", &ValidationError{Message: "Estado inválido. Valores: " + statusNames()}
}

func statusNames() string {
	names := make([]string, len(AllStatuses))
	for i, s := range AllStatuses {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

// Valid reports whether s is one of the seven known statuses.
func (s Status) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether no further lifecycle step is meaningful.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// Notifiable reports whether the patient hears about a change into s.
func (s Status) Notifiable() bool {
	switch s {
	case StatusConfirmed, StatusPaid, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

func (s Status) String() string { return string(s) }
