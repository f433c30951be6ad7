package signals

import "time"

// sideBook accumulates one side of one market for a single wallet
type sideBook struct {
	size         float64
	entryPrice   float64
	currentPrice float64
	tokenID      string
	seen         bool
}

type marketBook struct {
	marketID     string
	outcomeLabel string
	category     string
	marketName   string
	marketSlug   string
	yes          sideBook
	no           sideBook
}

// Normalize nets a single wallet's positions into directional signals.
//
// Records are grouped by market. Sizes on the same side are summed, while
// the entry and current price of a side are taken from the last record seen.
// When a wallet holds both sides of a market the smaller size is removed from
// both, and a side is only emitted if something remains. earliest maps token
// ids to the wallet's first activity on that token and may be nil.
func Normalize(wallet string, positions []RawPosition, earliest map[string]time.Time) []NettedSignal {
	books := make(map[string]*marketBook)
	var order []string

	for _, pos := range positions {
		if pos.MarketID == "" || (pos.Direction != DirectionYes && pos.Direction != DirectionNo) {
			continue
		}

		book, ok := books[pos.MarketID]
		if !ok {
			book = &marketBook{marketID: pos.MarketID}
			books[pos.MarketID] = book
			order = append(order, pos.MarketID)
		}

		book.outcomeLabel = pos.OutcomeLabel
		book.marketName = pos.MarketName
		book.marketSlug = pos.MarketSlug
		book.category = pos.Category

		side := &book.yes
		if pos.Direction == DirectionNo {
			side = &book.no
		}
		side.size += pos.Size
		side.entryPrice = pos.EntryPrice
		side.currentPrice = pos.CurrentPrice
		side.tokenID = pos.TokenID
		side.seen = true
	}

	out := make([]NettedSignal, 0, len(order))
	for _, marketID := range order {
		book := books[marketID]

		overlap := min(book.yes.size, book.no.size)
		if overlap < 0 {
			overlap = 0
		}
		netYes := book.yes.size - overlap
		netNo := book.no.size - overlap

		if book.yes.seen && netYes > 0 {
			out = append(out, book.emit(wallet, DirectionYes, &book.yes, netYes, earliest))
		}
		if book.no.seen && netNo > 0 {
			out = append(out, book.emit(wallet, DirectionNo, &book.no, netNo, earliest))
		}
	}

	return out
}

func (b *marketBook) emit(wallet string, dir Direction, side *sideBook, net float64, earliest map[string]time.Time) NettedSignal {
	category := b.category
	if category == "" {
		category = DefaultCategory
	}

	sig := NettedSignal{
		WalletAddress: wallet,
		MarketID:      b.marketID,
		OutcomeLabel:  b.outcomeLabel,
		Direction:     dir,
		EntryPrice:    side.entryPrice,
		CurrentPrice:  side.currentPrice,
		Size:          net,
		SizeUSDC:      net * side.entryPrice,
		Category:      category,
		MarketName:    b.marketName,
		MarketSlug:    b.marketSlug,
		TokenID:       side.tokenID,
	}
	if ts, ok := earliest[side.tokenID]; ok && side.tokenID != "" {
		sig.EarliestTimestamp = ts
	}
	return sig
}
