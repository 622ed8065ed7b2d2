package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/route-beacon/ecom-indexer/internal/bgp"
	"github.com/route-beacon/ecom-indexer/internal/bmp"
	"github.com/route-beacon/ecom-indexer/internal/ecommunity"
	"github.com/twmb/franz-go/pkg/kgo"
)

// ecom-decode inspects OpenBMP raw messages and prints the extended
// community sets they carry. Two modes:
//
//	ecom-decode attr <hex>          decode a raw attribute payload
//	ecom-decode [broker] [topic]    tail a Kafka topic and decode live
func main() {
	if len(os.Args) > 1 && os.Args[1] == "attr" {
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: ecom-decode attr <hex>")
			os.Exit(1)
		}
		decodeAttr(os.Args[2])
		return
	}

	broker := "localhost:29092"
	topic := "gobmp.raw"
	if len(os.Args) > 1 {
		broker = os.Args[1]
	}
	if len(os.Args) > 2 {
		topic = os.Args[2]
	}

	cl, err := kgo.NewClient(
		kgo.SeedBrokers(broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.ConsumerGroup(fmt.Sprintf("ecom-decode-%d", time.Now().UnixNano())),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kafka client: %v\n", err)
		os.Exit(1)
	}
	defer cl.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	msgNum := 0
	for {
		fetches := cl.PollRecords(ctx, 100)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			break
		}

		fetches.EachRecord(func(rec *kgo.Record) {
			msgNum++
			fmt.Printf("=== Kafka msg %d (partition=%d offset=%d, %d bytes) ===\n",
				msgNum, rec.Partition, rec.Offset, len(rec.Value))

			analyzeMessage(rec.Value)
			fmt.Println()
		})

		if msgNum > 0 && len(fetches.Records()) == 0 {
			break
		}
	}

	fmt.Printf("Total Kafka messages: %d\n", msgNum)
}

// decodeAttr prints every rendering of a raw EXTENDED_COMMUNITIES payload.
func decodeAttr(arg string) {
	raw, err := hex.DecodeString(strings.ReplaceAll(arg, ":", ""))
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad hex: %v\n", err)
		os.Exit(1)
	}

	set, err := ecommunity.Parse(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse: %v\n", err)
		os.Exit(1)
	}

	printSet(set, "  ")
}

func printSet(set *ecommunity.Set, indent string) {
	canon := set.UniqSort()
	fmt.Printf("%svalues:         %d (canonical %d)\n", indent, set.Size(), canon.Size())
	fmt.Printf("%sdisplay:        %s\n", indent, canon.Render(ecommunity.FormatDisplay))
	fmt.Printf("%sroute-map:      %s\n", indent, canon.Render(ecommunity.FormatRouteMap))
	fmt.Printf("%scommunity-list: %s\n", indent, canon.Render(ecommunity.FormatCommunityList))
	fmt.Printf("%soctets:         %s\n", indent, hex.EncodeToString(canon.Bytes()))
	fmt.Printf("%shash:           %016x\n", indent, canon.Hash())
	for i := 0; i < canon.Size(); i++ {
		v := canon.At(i)
		fmt.Printf("%s  [%d] type=0x%02x subtype=0x%02x transitive=%v\n",
			indent, i, v.Type(), v.SubType(), v.Transitive())
	}
}

func analyzeMessage(data []byte) {
	bmpBytes, err := bmp.DecodeFrame(data, 16*1024*1024)
	if err != nil {
		fmt.Printf("  DecodeFrame error: %v\n", err)
		return
	}
	fmt.Printf("  BMP payload: %d bytes\n", len(bmpBytes))

	msgs, err := bmp.ParseAll(bmpBytes)
	if err != nil {
		fmt.Printf("  ParseAll error: %v\n", err)
		return
	}
	fmt.Printf("  BMP messages in payload: %d\n", len(msgs))

	for i, m := range msgs {
		fmt.Printf("\n  --- BMP msg %d (offset=%d) ---\n", i, m.Offset)
		fmt.Printf("    MsgType:    %d (%s)\n", m.MsgType, bmpMsgName(m.MsgType))
		fmt.Printf("    PeerType:   %d (LocRIB=%v)\n", m.PeerType, m.IsLocRIB)
		fmt.Printf("    PeerFlags:  0x%02x (AddPath=%v)\n", m.PeerFlags, m.HasAddPath)
		fmt.Printf("    RouterID:   %q\n", m.RouterID)
		fmt.Printf("    TableName:  %q\n", m.TableName)

		if !m.IsLocRIB || m.MsgType != bmp.MsgTypeRouteMonitoring || m.BGPData == nil {
			continue
		}
		if len(m.BGPData) < bgp.BGPHeaderSize || m.BGPData[18] != bgp.BGPMsgTypeUpdate {
			continue
		}

		events, err := bgp.ParseUpdate(m.BGPData, m.HasAddPath)
		if err != nil {
			fmt.Printf("    ParseUpdate error: %v\n", err)
			continue
		}

		fmt.Printf("    Routes: %d\n", len(events))
		for j, ev := range events {
			fmt.Printf("      [%d] AFI=%d %s %s nexthop=%s as=%s pathID=%d\n",
				j, ev.AFI, ev.Action, ev.Prefix, ev.Nexthop, ev.ASPath, ev.PathID)
			if ev.ExtCommunities == nil {
				continue
			}
			set, err := ecommunity.Parse(ev.ExtCommunities)
			if err != nil {
				fmt.Printf("          malformed ext communities (%d bytes): %v\n",
					len(ev.ExtCommunities), err)
				continue
			}
			printSet(set, "          ")
		}
	}
}

func bmpMsgName(t uint8) string {
	switch t {
	case 0:
		return "RouteMonitoring"
	case 1:
		return "StatisticsReport"
	case 2:
		return "PeerDown"
	case 3:
		return "PeerUp"
	case 4:
		return "Initiation"
	case 5:
		return "Termination"
	default:
		return fmt.Sprintf("Unknown(%d)", t)
	}
}
