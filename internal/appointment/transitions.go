package appointment

// Transition legality lives in one table instead of scattered conditionals.
// Confirm is repeatable so a double-tap on the client side stays harmless;
// terminal states allow nothing.
var transitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusConfirmed: true,
		StatusCancelled: true,
		StatusCompleted: true,
		StatusNoShow:    true,
	},
	StatusConfirmed: {
		StatusConfirmed: true,
		StatusCancelled: true,
		StatusCompleted: true,
		StatusNoShow:    true,
	},
}

func canTransition(from, to Status) bool {
	return transitions[from][to]
}

// activeStatuses are the statuses that occupy calendar time: only these
// participate in conflict detection and availability.
var activeStatuses = []Status{StatusPending, StatusConfirmed}
