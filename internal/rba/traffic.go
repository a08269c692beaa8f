package rba

import "fmt"

// TrafficType is the tag stored in the tr_id word of a traffic ring record.
type TrafficType uint32

const (
	TrafficNull TrafficType = iota
	TrafficTime
	TrafficLost
	TrafficFileOpenWrite
	TrafficFileOpenRead
	TrafficFileClose
	TrafficFileClosed
	TrafficTCD
	TrafficPSM
	TrafficLUN
	TrafficFRU
	TrafficDBE
	TrafficSFE
	TrafficDML
	TrafficMVS
	TrafficMVA
	TrafficMLU
	TrafficSnap
	TrafficAgg
	TrafficMig
	TrafficClone
	TrafficCPM
	TrafficFEDisk
	TrafficCompression
	TrafficFBE
	TrafficFCT
	TrafficFBELUN
	TrafficFBERGFRU
	TrafficFBERG
	TrafficReserved1D
	TrafficReserved1E
	TrafficReserved1F
	TrafficLDO
	TrafficPDO
	TrafficPort
	TrafficVD
	TrafficPVD
	TrafficDDS
	TrafficSPC
	TrafficCBFS
	TrafficCCB
	TrafficMPT
	TrafficMCIO
	TrafficTDX // 0x2b
)

var trafficNames = [...]string{
	TrafficNull:          "NULL",
	TrafficTime:          "TIME",
	TrafficLost:          "LOST",
	TrafficFileOpenWrite: "FILE_OPEN_WRITE",
	TrafficFileOpenRead:  "FILE_OPEN_READ",
	TrafficFileClose:     "FILE_CLOSE",
	TrafficFileClosed:    "FILE_CLOSED",
	TrafficTCD:           "TCD",
	TrafficPSM:           "PSM",
	TrafficLUN:           "LUN",
	TrafficFRU:           "FRU",
	TrafficDBE:           "DBE",
	TrafficSFE:           "SFE",
	TrafficDML:           "DML",
	TrafficMVS:           "MVS",
	TrafficMVA:           "MVA",
	TrafficMLU:           "MLU",
	TrafficSnap:          "SNAP",
	TrafficAgg:           "AGG",
	TrafficMig:           "MIG",
	TrafficClone:         "CLONE",
	TrafficCPM:           "CPM",
	TrafficFEDisk:        "FEDISK",
	TrafficCompression:   "COMPRESSION",
	TrafficFBE:           "FBE",
	TrafficFCT:           "FCT",
	TrafficFBELUN:        "FBE_LUN",
	TrafficFBERGFRU:      "FBE_RG_FRU",
	TrafficFBERG:         "FBE_RG",
	TrafficReserved1D:    "RESERVED_1D",
	TrafficReserved1E:    "RESERVED_1E",
	TrafficReserved1F:    "RESERVED_1F",
	TrafficLDO:           "LDO",
	TrafficPDO:           "PDO",
	TrafficPort:          "PORT",
	TrafficVD:            "VD",
	TrafficPVD:           "PVD",
	TrafficDDS:           "DDS",
	TrafficSPC:           "SPC",
	TrafficCBFS:          "CBFS",
	TrafficCCB:           "CCB",
	TrafficMPT:           "MPT",
	TrafficMCIO:          "MCIO",
	TrafficTDX:           "TDX",
}

func (t TrafficType) String() string {
	if int(t) < len(trafficNames) {
		return trafficNames[t]
	}
	return fmt.Sprintf("0x%02x", uint32(t))
}

// Known reports whether t is part of the fixed tag table.
func (t TrafficType) Known() bool {
	return int(t) < len(trafficNames)
}

// ParseTrafficType resolves a symbolic name from the tag table.
func ParseTrafficType(name string) (TrafficType, bool) {
	for i, n := range trafficNames {
		if n == name {
			return TrafficType(i), true
		}
	}
	return 0, false
}

// TrafficTypes lists every tag in table order.
func TrafficTypes() []TrafficType {
	out := make([]TrafficType, len(trafficNames))
	for i := range trafficNames {
		out[i] = TrafficType(i)
	}
	return out
}

// Traffic families used by the filter layer.
var (
	LogicalUnitTraffic   = []TrafficType{TrafficLUN, TrafficFBELUN, TrafficVD, TrafficMLU}
	PhysicalDriveTraffic = []TrafficType{TrafficPDO, TrafficLDO, TrafficFRU, TrafficDBE, TrafficFBE}
	RaidGroupTraffic     = []TrafficType{TrafficFBERG, TrafficFBERGFRU}
	ProvisionTraffic     = []TrafficType{TrafficPVD}
)
