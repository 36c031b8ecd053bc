// Copyright (c) Stinger IPC
// SPDX-License-Identifier: Apache-2.0

package badger

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/stinger-ipc/stinger-mqtt/storage"
)

var (
	recordEncMode cbor.EncMode
	recordDecMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
		Time:        cbor.TimeRFC3339Nano,
	}
	recordEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create record CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}
	recordDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create record CBOR decoder mode: %v", err))
	}
}

func encodeRecord(rec storage.Record) ([]byte, error) {
	return recordEncMode.Marshal(rec)
}

func decodeRecord(data []byte) (storage.Record, error) {
	var rec storage.Record
	if err := recordDecMode.Unmarshal(data, &rec); err != nil {
		return storage.Record{}, err
	}
	return rec, nil
}
