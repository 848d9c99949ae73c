// Copyright 2022 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package livelog

import "fmt"

// Group selects one of the two metric families a Logger owns.
type Group int8

const (
	GroupTrain Group = iota
	GroupTest

	numGroups = 2
)

func (g Group) String() string {
	switch g {
	case GroupTrain:
		return "train"
	case GroupTest:
		return "test"
	default:
		return fmt.Sprintf("group(%d)", int8(g))
	}
}

// ParseGroup maps the wire spelling back to a Group.
func ParseGroup(s string) (Group, bool) {
	switch s {
	case "train":
		return GroupTrain, true
	case "test":
		return GroupTest, true
	default:
		return 0, false
	}
}

func (g Group) valid() bool {
	return g >= 0 && g < numGroups
}

// peer returns the other family, the one consulted for epoch alignment.
func (g Group) peer() Group {
	if g == GroupTrain {
		return GroupTest
	}
	return GroupTrain
}
