package coordinator

import (
	"fmt"

	"DealPilot/internal/deal"
	xerrors "DealPilot/internal/errors"
	"DealPilot/internal/pricing"
)

// Status is an invitee's progress through the protocol.
type Status string

const (
	StatusInvited    Status = "invited"
	StatusReplied    Status = "replied"
	StatusResearched Status = "researched"
)

func (s Status) rank() int {
	switch s {
	case StatusInvited:
		return 0
	case StatusReplied:
		return 1
	case StatusResearched:
		return 2
	default:
		return -1
	}
}

// ResearchResult is the winning offer for one item an invitee asked for.
type ResearchResult struct {
	Item     string                `json:"item"`
	Platform string                `json:"platform"`
	Price    pricing.Price         `json:"price"`
	Title    string                `json:"title"`
	Vendor   string                `json:"vendor"`
	Quotes   map[string]deal.Quote `json:"quotes,omitempty"`
}

// Invitee is one participant. Status only ever moves forward one step at a time.
type Invitee struct {
	Name      string           `json:"name"`
	Status    Status           `json:"status"`
	Reply     string           `json:"reply,omitempty"`
	Results   []ResearchResult `json:"results,omitempty"`
	LastError string           `json:"last_error,omitempty"`
}

func newInvitee(name string) *Invitee {
	return &Invitee{Name: name, Status: StatusInvited}
}

// advance moves the invitee to next. Regressions and skipped states are refused.
func (i *Invitee) advance(next Status) error {
	if next.rank() != i.Status.rank()+1 {
		return xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("invitee %s cannot move from %s to %s", i.Name, i.Status, next))
	}
	i.Status = next
	return nil
}
