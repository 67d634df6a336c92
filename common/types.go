package common

// Track identifies which capital track an account trades on.
type Track int

const (
	QualificationTrack Track = iota // virtual capital, screening phase
	FundedTrack                     // real capital, shared collateral pool
)

func (t Track) String() string {
	switch t {
	case QualificationTrack:
		return "qualification"
	case FundedTrack:
		return "funded"
	default:
		return "unknown"
	}
}
