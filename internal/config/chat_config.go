package config

import "time"

const (
	// Turns
	DefaultMinCountedMessageWordCount = 4
	DefaultMinRephrasingTurns         = 2
	DefaultRephraseEveryNTurns        = 2
	DefaultRequiredPartnerTurns       = 4
	DefaultContextTurns               = 2

	// Rephrasing
	DefaultMaxRephrasingAttempts = 10
	DefaultRephrasingRetryDelay  = 500 * time.Millisecond
	DefaultRephrasingTimeout     = 30 * time.Second
	DefaultRephrasingMaxTokens   = 400
	DefaultRephrasingTopP        = 0.95

	// Waiting room
	DefaultWaitingRoomTimeout = 5 * time.Minute
	DefaultMatchSweepInterval = 5 * time.Second

	// Chatroom lock
	DefaultChatroomLockTTL  = 10 * time.Second
	DefaultChatroomLockWait = 5 * time.Second
)

// DefaultStrategies is the order in which strategies are requested.
var DefaultStrategies = []string{"restate", "validate", "clarify", "polite"}

// StrategyLogitBiases steer each strategy away from its most common openers.
// Keys are tokenizer ids of the completion model.
var StrategyLogitBiases = map[string]map[string]float64{
	"restate": {
		"1833": -1.5,  // ' understand'
		"766":  -0.5,  // ' see'
		"460":  -0.5,  // ' can'
		"40":   -1,    // 'I'
		"3285": -0.5,  // ' hear'
		"2396": -1.25, // 'So'
	},
	"validate": {
		"1026": -2, // 'It'
	},
	"clarify": {
		"6090":  -1.25, // 'Can'
		"23722": -0.5,  // 'Could'
		"5195":  -0.25, // 'Why'
		"5211":  -0.5,  // 'Do'
	},
	"polite": {
		"40":    -2.5, // 'I'
		"12546": -0.5, // ' disagree'
	},
}

// BaseLogitBiases apply to every strategy and suppress profanity.
var BaseLogitBiases = map[string]float64{
	"31699": -3,
	"5089":  -3,
	"9372":  -3,
	"542":   -3,
	"840":   -3,
	"5968":  -3,
}

// LogitBiasFor merges the strategy bias with the base bias. Base entries win.
func LogitBiasFor(strategy string) map[string]float64 {
	bias := make(map[string]float64, len(StrategyLogitBiases[strategy])+len(BaseLogitBiases))
	for token, weight := range StrategyLogitBiases[strategy] {
		bias[token] = weight
	}
	for token, weight := range BaseLogitBiases {
		bias[token] = weight
	}
	return bias
}
