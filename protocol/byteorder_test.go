/*
Copyright (c) CSPTP Project

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csptp/csptp/ptptime"
)

func TestGetPut48RoundTrip(t *testing.T) {
	b := make([]byte, 6)
	require.NoError(t, Put48(b, Max48))
	assert.EqualValues(t, Max48, Get48(b))

	require.NoError(t, Put48(b, 0))
	assert.EqualValues(t, 0, Get48(b))
}

func TestPut48RejectsOverflow(t *testing.T) {
	b := make([]byte, 6)
	err := Put48(b, Max48+1)
	assert.Error(t, err)
}

func TestWireTimestampRoundTrip(t *testing.T) {
	ts, err := ptptime.New(1_700_000_000, 123456789)
	require.NoError(t, err)

	b := make([]byte, 10)
	require.NoError(t, PutWireTimestamp(b, ts))

	got, err := GetWireTimestamp(b)
	require.NoError(t, err)
	assert.True(t, ts.Equal(got))
}
