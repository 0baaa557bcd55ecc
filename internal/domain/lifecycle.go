package domain

type Action string

const (
	ActionConfirm        Action = "confirm"
	ActionComplete       Action = "complete"
	ActionCancel         Action = "cancel"
	ActionReschedule     Action = "reschedule"
	ActionDeleteBusiness Action = "delete_business"
	ActionPayDeposit     Action = "pay_deposit"
	ActionCheckOut       Action = "check_out"
	ActionReturn         Action = "return"
)

// Rule is one row of a lifecycle table.
type Rule struct {
	To Status
	// RecheckCapacity makes the store re-run the capacity check under its
	// resource lock before applying the transition.
	RecheckCapacity bool
	Intent          EventType
}

// Lifecycle maps (state, action) to the resulting rule. It is checked before
// any write, by services and again by the store.
type Lifecycle struct {
	kind  ReservationKind
	rules map[Status]map[Action]Rule
}

var BookingLifecycle = Lifecycle{
	kind: KindBooking,
	rules: map[Status]map[Action]Rule{
		StatusPending: {
			ActionConfirm:        {To: StatusConfirmed, Intent: EventReservationConfirmed},
			ActionCancel:         {To: StatusCancelled, Intent: EventReservationCancelled},
			ActionReschedule:     {To: StatusPending, RecheckCapacity: true, Intent: EventReservationRescheduled},
			ActionDeleteBusiness: {To: StatusBusinessDeleted},
		},
		StatusConfirmed: {
			ActionComplete:       {To: StatusCompleted, Intent: EventReservationCompleted},
			ActionCancel:         {To: StatusCancelled, Intent: EventReservationCancelled},
			ActionReschedule:     {To: StatusConfirmed, RecheckCapacity: true, Intent: EventReservationRescheduled},
			ActionDeleteBusiness: {To: StatusBusinessDeleted},
		},
		StatusCompleted: {ActionDeleteBusiness: {To: StatusBusinessDeleted}},
		StatusCancelled: {ActionDeleteBusiness: {To: StatusBusinessDeleted}},
	},
}

var RentalLifecycle = Lifecycle{
	kind: KindRental,
	rules: map[Status]map[Action]Rule{
		StatusPendingDeposit: {
			ActionPayDeposit: {To: StatusDepositPaid, RecheckCapacity: true, Intent: EventRentalDepositPaid},
			// only reachable when the business allows checkout without a deposit
			ActionCheckOut: {To: StatusCheckedOut, RecheckCapacity: true, Intent: EventRentalCheckedOut},
			ActionCancel:   {To: StatusCancelled, Intent: EventRentalCancelled},
		},
		StatusDepositPaid: {
			ActionCheckOut: {To: StatusCheckedOut, RecheckCapacity: true, Intent: EventRentalCheckedOut},
			ActionCancel:   {To: StatusCancelled, Intent: EventRentalCancelled},
		},
		StatusCheckedOut: {
			ActionReturn: {To: StatusReturned, Intent: EventRentalReturned},
		},
		StatusOverdue: {
			ActionReturn: {To: StatusReturned, Intent: EventRentalReturned},
		},
		StatusReturned: {
			ActionComplete: {To: StatusCompleted, Intent: EventRentalCompleted},
		},
	},
}

func (l Lifecycle) Kind() ReservationKind { return l.kind }

// Next looks up the rule for applying action in state from. The reservation
// id is left empty; callers fill it in when they have one.
func (l Lifecycle) Next(from Status, action Action) (Rule, error) {
	rule, ok := l.rules[from][action]
	if !ok {
		return Rule{}, &InvalidTransitionError{From: from, Action: action}
	}
	return rule, nil
}

// Allows reports whether any action moves from into to.
func (l Lifecycle) Allows(from, to Status) bool {
	for _, rule := range l.rules[from] {
		if rule.To == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no user action leaves s.
func (l Lifecycle) IsTerminal(s Status) bool {
	for action := range l.rules[s] {
		if action != ActionDeleteBusiness {
			return false
		}
	}
	return true
}

func LifecycleFor(kind ReservationKind) Lifecycle {
	if kind == KindRental {
		return RentalLifecycle
	}
	return BookingLifecycle
}
