package settlement

import "container/heap"

// Transfer is one directed payment in minor units.
type Transfer struct {
	From   string
	To     string
	Amount int64
}

type party struct {
	id  string
	amt int64
}

// partyHeap pops the largest amount first, lowest id on ties.
type partyHeap []party

func (h partyHeap) Len() int { return len(h) }
func (h partyHeap) Less(i, j int) bool {
	if h[i].amt != h[j].amt {
		return h[i].amt > h[j].amt
	}
	return h[i].id < h[j].id
}
func (h partyHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *partyHeap) Push(x any)   { *h = append(*h, x.(party)) }
func (h *partyHeap) Pop() any {
	old := *h
	p := old[len(old)-1]
	*h = old[:len(old)-1]
	return p
}

// Net reduces a bucket's pairwise obligations to single-direction transfers.
//
// Every participant's net balance is computed; balances within dust of zero are
// treated as settled. The largest debtor is then repeatedly matched with the
// largest creditor for the smaller of the two magnitudes. Each step settles at
// least one participant, so at most n-1 transfers are produced for n unsettled
// participants, and nobody ends up both paying and receiving.
func Net(o NetObligation, dust int64) []Transfer {
	if dust < 0 {
		dust = 0
	}
	debtors, creditors := &partyHeap{}, &partyHeap{}
	for id, bal := range o.Balances() {
		switch {
		case bal > dust:
			*creditors = append(*creditors, party{id: id, amt: bal})
		case bal < -dust:
			*debtors = append(*debtors, party{id: id, amt: -bal})
		}
	}
	heap.Init(debtors)
	heap.Init(creditors)

	var out []Transfer
	for debtors.Len() > 0 && creditors.Len() > 0 {
		d := heap.Pop(debtors).(party)
		c := heap.Pop(creditors).(party)
		pay := min(d.amt, c.amt)
		out = append(out, Transfer{From: d.id, To: c.id, Amount: pay})
		d.amt -= pay
		c.amt -= pay
		if d.amt > dust {
			heap.Push(debtors, d)
		}
		if c.amt > dust {
			heap.Push(creditors, c)
		}
	}
	return out
}
