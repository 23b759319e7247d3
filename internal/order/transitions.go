package order

// transitionMap lists the legal next states for each state. delivered and
// cancelled are terminal; cancelled is reachable from every non-terminal
// state.
var transitionMap = map[Status][]Status{
	StatusPendingPayment:    {StatusConfirmed, StatusCancelled},
	StatusPendingValidation: {StatusConfirmed, StatusCancelled},
	StatusConfirmed:         {StatusInPreparation, StatusCancelled},
	StatusInPreparation:     {StatusReady, StatusCancelled},
	StatusReady:             {StatusDelivered, StatusCancelled},
	StatusDelivered:         {},
	StatusCancelled:         {},
}

func ValidTransition(from, to Status) bool {
	allowed, ok := transitionMap[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

func Terminal(s Status) bool {
	return s == StatusDelivered || s == StatusCancelled
}
