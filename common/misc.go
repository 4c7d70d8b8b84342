package common

import (
	"hash/fnv"
	"os"

	"github.com/fundwit/go-commons/types"
	"github.com/sony/sonyflake"
)

// NewIdWorker falls back to a hostname derived machine id when no private
// IPv4 address is available, which is common inside containers.
func NewIdWorker() *sonyflake.Sonyflake {
	if worker := sonyflake.NewSonyflake(sonyflake.Settings{}); worker != nil {
		return worker
	}
	return sonyflake.NewSonyflake(sonyflake.Settings{MachineID: hostMachineID})
}

func NextId(idWorker *sonyflake.Sonyflake) types.ID {
	id, err := idWorker.NextID()
	if err != nil {
		panic(err)
	}
	return types.ID(id)
}

func hostMachineID() (uint16, error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(GetServiceInstance()))
	_, _ = h.Write([]byte{byte(os.Getpid()), byte(os.Getpid() >> 8)})
	return uint16(h.Sum32()), nil
}
