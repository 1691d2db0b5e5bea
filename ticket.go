package main

import (
	"encoding/json"
	"fmt"
)

// SaleStatus is the on_sale_status reported for a ticket class.
type SaleStatus string

const (
	StatusAvailable    SaleStatus = "AVAILABLE"
	StatusNotYetOnSale SaleStatus = "NOT_YET_ON_SALE"
	StatusSoldOut      SaleStatus = "SOLD_OUT"
	StatusUnavailable  SaleStatus = "UNAVAILABLE"
)

// Known reports whether s is one of the statuses the API documents.
// Anything else is kept verbatim and treated as "other".
func (s SaleStatus) Known() bool {
	switch s {
	case StatusAvailable, StatusNotYetOnSale, StatusSoldOut, StatusUnavailable:
		return true
	}
	return false
}

// TicketClass is one immutable ticket-class snapshot from a single fetch.
type TicketClass struct {
	ID     string     `json:"id"`
	Name   string     `json:"name"`
	Status SaleStatus `json:"on_sale_status"`
}

// Page is one page of the ticket_classes collection. It belongs to the
// aggregator for the duration of a cycle.
type Page struct {
	Number    int
	Raw       json.RawMessage
	Tickets   []TicketClass
	HasMore   bool
	PageCount int // 0 when the API did not report it
}

type pagination struct {
	HasMoreItems bool `json:"has_more_items"`
	PageCount    int  `json:"page_count"`
	PageNumber   int  `json:"page_number"`
	PageSize     int  `json:"page_size"`
	ObjectCount  int  `json:"object_count"`
}

type ticketClassesResponse struct {
	TicketClasses []TicketClass `json:"ticket_classes"`
	Pagination    pagination    `json:"pagination"`
}

// parsePage decodes a ticket_classes payload. Ticket ids arrive as
// strings from the API, but numeric ids are tolerated.
func parsePage(number int, body []byte) (*Page, error) {
	var resp ticketClassesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		var loose struct {
			TicketClasses []struct {
				ID     json.Number `json:"id"`
				Name   string      `json:"name"`
				Status SaleStatus  `json:"on_sale_status"`
			} `json:"ticket_classes"`
			Pagination pagination `json:"pagination"`
		}
		if looseErr := json.Unmarshal(body, &loose); looseErr != nil {
			return nil, fmt.Errorf("failed to parse page %d: %w", number, err)
		}
		resp.Pagination = loose.Pagination
		for _, tc := range loose.TicketClasses {
			resp.TicketClasses = append(resp.TicketClasses, TicketClass{
				ID:     tc.ID.String(),
				Name:   tc.Name,
				Status: tc.Status,
			})
		}
	}

	raw := make(json.RawMessage, len(body))
	copy(raw, body)

	return &Page{
		Number:    number,
		Raw:       raw,
		Tickets:   resp.TicketClasses,
		HasMore:   resp.Pagination.HasMoreItems,
		PageCount: resp.Pagination.PageCount,
	}, nil
}

// availableIn returns the entries of tickets whose status is exactly AVAILABLE.
func availableIn(tickets []TicketClass) []TicketClass {
	var matched []TicketClass
	for _, tc := range tickets {
		if tc.Status == StatusAvailable {
			matched = append(matched, tc)
		}
	}
	return matched
}
