package domain

import "time"

// Snapshot is the single durable record shared between processes. Every
// local commit rewrites the whole record; OriginID tags the writing process
// so readers can drop echoes of their own writes.
type Snapshot struct {
	OriginID       string          `json:"origin_id"`
	Revision       uint64          `json:"revision"`
	WrittenAt      time.Time       `json:"written_at"`
	Orders         []Order         `json:"orders"`
	KitchenTickets []KitchenTicket `json:"kitchen_tickets"`
}

// Clone deep-copies the snapshot so callers can hand it out without
// exposing store internals.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Orders = CloneOrders(s.Orders)
	out.KitchenTickets = CloneTickets(s.KitchenTickets)
	return out
}

func CloneOrders(orders []Order) []Order {
	if orders == nil {
		return nil
	}
	out := make([]Order, len(orders))
	for i, o := range orders {
		out[i] = o
		out[i].Lines = append([]CartLine(nil), o.Lines...)
		out[i].Events = append([]OrderEvent(nil), o.Events...)
		if o.TableID != nil {
			t := *o.TableID
			out[i].TableID = &t
		}
		if o.Payment != nil {
			p := *o.Payment
			out[i].Payment = &p
		}
		if o.CompletedAt != nil {
			c := *o.CompletedAt
			out[i].CompletedAt = &c
		}
	}
	return out
}

func CloneTickets(tickets []KitchenTicket) []KitchenTicket {
	if tickets == nil {
		return nil
	}
	out := make([]KitchenTicket, len(tickets))
	for i, t := range tickets {
		out[i] = t
		out[i].Items = append([]TicketItem(nil), t.Items...)
	}
	return out
}
