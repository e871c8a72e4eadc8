package persona

// Stage is how close Alina feels to a user.
type Stage string

const (
	StageStranger     Stage = "stranger"
	StageAcquaintance Stage = "acquaintance"
	StageFriend       Stage = "friend"
	StageCloseFriend  Stage = "close_friend"
	StageBestFriend   Stage = "best_friend"
)

// AllStages lists stages from most distant to closest.
var AllStages = []Stage{StageStranger, StageAcquaintance, StageFriend, StageCloseFriend, StageBestFriend}

var stageThresholds = []struct {
	below int
	stage Stage
}{
	{10, StageStranger},
	{50, StageAcquaintance},
	{200, StageFriend},
	{500, StageCloseFriend},
}

// RelationshipStage maps the lifetime message count to a stage. daysKnown is accepted for
// callers that track it but does not move the boundaries.
func RelationshipStage(messageCount, daysKnown int) Stage {
	for _, t := range stageThresholds {
		if messageCount < t.below {
			return t.stage
		}
	}
	return StageBestFriend
}

// IsClose reports whether the stage is friend or closer.
func (s Stage) IsClose() bool {
	switch s {
	case StageFriend, StageCloseFriend, StageBestFriend:
		return true
	}
	return false
}
