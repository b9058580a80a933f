// Package repositories contains MongoDB repository implementations.
package repositories

import "go.mongodb.org/mongo-driver/v2/bson"

// cmdMatch - See https://www.mongodb.com/docs/manual/reference/operator/aggregation/match/
func cmdMatch(i any) bson.E {
	return bson.E{
		Key:   "$match",
		Value: i,
	}
}

// cmdGroup - See https://www.mongodb.com/docs/manual/reference/operator/aggregation/group/
func cmdGroup(i any) bson.E {
	return bson.E{
		Key:   "$group",
		Value: i,
	}
}

// cmdSort - See https://www.mongodb.com/docs/manual/reference/operator/aggregation/sort/
func cmdSort(i any) bson.E {
	return bson.E{
		Key:   "$sort",
		Value: i,
	}
}
