package core

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// AllowedOrderings drops every ordering whose field is not in `fields`.
// Ordering fields come from query strings and end up in ORDER BY clauses.
func AllowedOrderings(orderings []DBOrdering, fields ...string) []DBOrdering {
	if len(orderings) == 0 {
		return nil
	}
	allowed := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		allowed[f] = struct{}{}
	}
	res := make([]DBOrdering, 0, len(orderings))
	for _, ord := range orderings {
		if _, ok := allowed[ord.Field]; ok {
			res = append(res, ord)
		}
	}
	return res
}
