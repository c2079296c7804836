// Command admin inspects the pipeline's on-disk state: the build queue,
// the transaction log, installed mods, protocol intents, archived plans
// and the read-model index.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"idealcity/internal/builder"
	"idealcity/internal/model"
	"idealcity/internal/mods"
	"idealcity/internal/persistence/indexdb"
	"idealcity/internal/persistence/txlog"
	"idealcity/internal/protocolfs"
	"idealcity/internal/tuning"
)

func main() {
	var (
		dataDir     = flag.String("data", "./data", "runtime data directory")
		protocolDir = flag.String("protocol", "./data/protocol", "protocol artefact directory")
		modsDir     = flag.String("mods", "./mods", "installed mods root")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[admin] ", log.LstdFlags)
	roots := tuning.ResolveRoots(*dataDir, *protocolDir, *modsDir)

	cmd := flag.Arg(0)
	var err error
	switch cmd {
	case "queue":
		err = showQueue(roots.Data)
	case "txlog":
		err = showTxlog(roots.Data, flag.Arg(1))
	case "mods":
		err = showMods(roots.Mods)
	case "intents":
		err = showIntents(roots.Protocol)
	case "archive":
		err = showArchive(roots.Data)
	case "db":
		err = showDB(roots.Data)
	default:
		fmt.Fprintln(os.Stderr, "usage: admin [flags] queue|txlog [patch_id|archive]|mods|intents|archive|db")
		os.Exit(2)
	}
	if err != nil {
		logger.Fatalf("%s: %v", cmd, err)
	}
}

func showQueue(dataRoot string) error {
	sched, err := builder.NewScheduler(filepath.Join(dataRoot, "build_queue"), nil)
	if err != nil {
		return err
	}
	plans, err := sched.Pending()
	if err != nil {
		return err
	}
	if len(plans) == 0 {
		fmt.Println("queue empty")
		return nil
	}
	for i, p := range plans {
		fmt.Printf("%2d  %-24s %-10s %s\n", i+1, p.PlanID, p.Status, p.Summary)
	}
	return nil
}

func showTxlog(dataRoot, patchID string) error {
	l, err := txlog.Open(dataRoot)
	if err != nil {
		return err
	}
	if patchID == "archive" {
		archived, err := l.Archive(l.ArchiveDir())
		if err != nil {
			return err
		}
		if archived == "" {
			fmt.Println("nothing to archive")
			return nil
		}
		fmt.Println(archived)
		return nil
	}
	if patchID != "" {
		entries, err := l.ForPatch(patchID)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("%-12s %-10s %s\n", e.TemplateID, e.Status, strings.Join(e.Commands, " && "))
		}
		return nil
	}
	latest, err := l.LatestByKey()
	if err != nil {
		return err
	}
	counts := map[model.TxStatus]int{}
	patches := map[string]struct{}{}
	for k, e := range latest {
		counts[e.Status]++
		patches[k.PatchID] = struct{}{}
	}
	fmt.Printf("patches=%d templates=%d validated=%d pending=%d failed=%d\n",
		len(patches), len(latest), counts[model.TxValidated], counts[model.TxPending], counts[model.TxFailed])
	return nil
}

func showMods(root string) error {
	registry := mods.NewRegistry(root)
	if err := registry.Refresh(); err != nil {
		return err
	}
	list := registry.List()
	if len(list) == 0 {
		fmt.Println("no mods installed")
		return nil
	}
	for _, m := range list {
		fmt.Printf("%-20s %-16s entry_points=%d\n", m.ID, m.EffectiveNamespace(), len(m.EntryPoints))
	}
	return nil
}

func showIntents(protocolRoot string) error {
	w, err := protocolfs.NewIntentWriter(protocolRoot, false, nil)
	if err != nil {
		return err
	}
	names, err := w.Pending()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Println("no pending intents")
		return nil
	}
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(protocolRoot, "city-intents", "pending", name))
		if err != nil {
			return err
		}
		var env model.IntentEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			fmt.Printf("%-40s (unreadable)\n", name)
			continue
		}
		fmt.Printf("%-40s stage=%d confidence=%.2f expires=%s\n",
			name, env.Intent.AllowedStage, env.Intent.ConfidenceLevel, env.Intent.ExpiresAt.Format("15:04:05"))
	}
	return nil
}

func showArchive(dataRoot string) error {
	for _, sub := range []string{"completed", "failed", "executed"} {
		dir := filepath.Join(dataRoot, "build_queue", sub)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		var names []string
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
				names = append(names, strings.TrimSuffix(e.Name(), ".json"))
			}
		}
		sort.Strings(names)
		fmt.Printf("%s (%d):\n", sub, len(names))
		for _, n := range names {
			fmt.Printf("  %s\n", n)
		}
	}
	return nil
}

func showDB(dataRoot string) error {
	idx, err := indexdb.Open(filepath.Join(dataRoot, "index.db"))
	if err != nil {
		return err
	}
	defer idx.Close()
	stats, err := idx.Stats()
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%-24s %d\n", k, stats[k])
	}
	verdicts, err := idx.VerdictCounts()
	if err != nil {
		return err
	}
	vkeys := make([]string, 0, len(verdicts))
	for k := range verdicts {
		vkeys = append(vkeys, k)
	}
	sort.Strings(vkeys)
	for _, k := range vkeys {
		fmt.Printf("verdict %-16s %d\n", k, verdicts[k])
	}
	return nil
}
