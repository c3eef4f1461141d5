package rules

import "fmt"

// Kind 打卡类型
type Kind string

const (
	KindEntry Kind = "entry"
	KindExit  Kind = "exit"
)

// Valid 是否为合法的打卡类型
func (k Kind) Valid() bool {
	return k == KindEntry || k == KindExit
}

// Decision 规则判定结果，无论通过与否都附带可读说明
type Decision struct {
	Valid   bool
	Message string
}

func accept(msg string) Decision { return Decision{Valid: true, Message: msg} }
func reject(msg string) Decision { return Decision{Valid: false, Message: msg} }

// MessageFirstEntry 当天第一条进入记录
const MessageFirstEntry = "first entry of the day"

// Punch 参与顺序判定的一条打卡
type Punch struct {
	Kind Kind
	Time Clock
}

// CheckSequence 根据同一员工同一天最近一条有效记录（pending/validated）判定新打卡是否合法。
// last 为 nil 表示当天尚无记录。
//
//	last   new    结果
//	none   entry  通过
//	none   exit   拒绝：没有之前的进入
//	entry  entry  拒绝：连续两次进入
//	entry  exit   new.Time > last.Time 才通过
//	exit   entry  通过
//	exit   exit   拒绝：连续两次离开
func CheckSequence(last *Punch, next Punch) Decision {
	if last == nil {
		if next.Kind == KindEntry {
			return accept(MessageFirstEntry)
		}
		return reject("cannot register an exit without a prior entry on the same day (no prior entry)")
	}

	switch last.Kind {
	case KindEntry:
		if next.Kind == KindEntry {
			return reject(fmt.Sprintf(
				"two consecutive entries are not allowed; last entry was registered at %s", last.Time))
		}
		if next.Time <= last.Time {
			return reject(fmt.Sprintf(
				"exit not after entry: exit time %s must be later than entry time %s",
				next.Time.HHMM(), last.Time.HHMM()))
		}
		return accept(fmt.Sprintf("valid exit after entry at %s", last.Time.HHMM()))
	default:
		if next.Kind == KindExit {
			return reject(fmt.Sprintf(
				"two consecutive exits are not allowed; last exit was registered at %s", last.Time))
		}
		return accept(fmt.Sprintf("valid entry after exit at %s", last.Time.HHMM()))
	}
}

// Check 依次执行工作时间检查与顺序检查；提交时与对账时共用同一套规则
func (w Window) Check(last *Punch, next Punch) Decision {
	if d := w.CheckWorkingHours(next.Time); !d.Valid {
		return d
	}
	return CheckSequence(last, next)
}
