//go:build unix

package supervisor

import (
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/aretw0/manifold/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupervisor_MasterRegistration(t *testing.T) {
	rec := &recorder{}
	s, _ := newTestSupervisor(t, rec)

	id, err := s.SpawnMaster("sh", []string{"-c", "read line"})
	require.NoError(t, err)
	assert.Equal(t, domain.RootID, id)

	_, err = s.SpawnMaster("sh", []string{"-c", "read line"})
	assert.ErrorIs(t, err, domain.ErrMasterExists)

	_, err = s.RegisterEnclosing(strings.NewReader(""))
	assert.ErrorIs(t, err, domain.ErrMasterExists)

	assert.EqualValues(t, 1, rec.spawns.Load(), "a rejected registration must not spawn")

	master := s.Master()
	assert.Equal(t, domain.OriginSpawnedProcess, master.Origin)
	assert.Equal(t, "sh", master.Command)
	assert.Equal(t, domain.NodeStateRunning, master.State)
	s.Ready()
}

func TestSupervisor_MasterCleanExitShutsDown(t *testing.T) {
	rec := &recorder{}
	s, out := newTestSupervisor(t, rec, WithDrainTimeout(5*time.Second))
	file := sinkFile(t, "tail.out")

	_, err := s.SpawnMaster("sh", []string{"-c", `printf "line 1\nline 2\n"; sleep 0.3`})
	require.NoError(t, err)
	_, err = s.SpawnChild(domain.RootID, "sh", []string{"-c", `cat > "$1"`, "sh", file})
	require.NoError(t, err)
	s.Ready()

	assert.Equal(t, 0, waitDone(t, s))
	assert.Equal(t, "line 1\nline 2\n", out.String())
	assert.Equal(t, "line 1\nline 2\n", readFile(t, file))
	assert.Zero(t, rec.respawns.Load())
}

func TestSupervisor_BuffersOutputProducedBeforeStages(t *testing.T) {
	rec := &recorder{}
	s, out := newTestSupervisor(t, rec, WithDrainTimeout(5*time.Second))
	file := sinkFile(t, "early.out")

	_, err := s.SpawnMaster("sh", []string{"-c", `printf early; read line`})
	require.NoError(t, err)

	// The master has written before any stage exists.
	require.Eventually(t, func() bool { return s.relay.Buffered() == len("early") }, waitFor, tick)

	_, err = s.SpawnChild(domain.RootID, "sh", []string{"-c", `cat > "$1"`, "sh", file})
	require.NoError(t, err)
	s.Ready()

	assert.Eventually(t, func() bool { return readFile(t, file) == "early" }, waitFor, tick)

	s.Shutdown()
	assert.Equal(t, 0, waitDone(t, s))
	assert.Equal(t, "early", out.String())
	assert.Equal(t, "early", readFile(t, file))
}

func TestSupervisor_EnclosingInputFeedsChainedStages(t *testing.T) {
	rec := &recorder{}
	s, out := newTestSupervisor(t, rec, WithDrainTimeout(5*time.Second))
	file := sinkFile(t, "grandchild.out")

	_, err := s.RegisterEnclosing(strings.NewReader("hello"))
	require.NoError(t, err)
	echo, err := s.SpawnChild(domain.RootID, "sh", []string{"-c", `printf "echo - %s" "$(cat)"`})
	require.NoError(t, err)
	_, err = s.SpawnChild(echo, "sh", []string{"-c", `cat > "$1"`, "sh", file})
	require.NoError(t, err)
	s.Ready()

	assert.Equal(t, 0, waitDone(t, s))
	assert.Equal(t, "echo - hello", readFile(t, file))
	assert.Equal(t, "hello", out.String())
	assert.Equal(t, domain.OriginEnclosingProgram, s.Master().Origin)
	assert.Zero(t, rec.respawns.Load())
}

func TestSupervisor_RespawnsCrashingChild(t *testing.T) {
	rec := &recorder{}
	s, _ := newTestSupervisor(t, rec)
	in, _ := stdinPipe(t)

	_, err := s.RegisterEnclosing(in)
	require.NoError(t, err)
	id, err := s.SpawnChild(domain.RootID, "sh", []string{"-c", "exit 1"})
	require.NoError(t, err)
	s.Ready()

	require.Eventually(t, func() bool { return rec.respawns.Load() >= 1 }, waitFor, tick)

	ev := rec.lastRespawn()
	assert.Equal(t, id, ev.NodeID)
	assert.Equal(t, "sh", ev.Command)
	assert.Equal(t, []string{"-c", "exit 1"}, ev.Args)
	assert.False(t, ev.Master)

	s.Shutdown()
	waitDone(t, s)

	after := rec.respawns.Load()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, after, rec.respawns.Load(), "no respawn after shutdown")
}

func TestSupervisor_RespawnKeepsChildrenAttached(t *testing.T) {
	rec := &recorder{}
	s, _ := newTestSupervisor(t, rec)
	in, inW := stdinPipe(t)
	file := sinkFile(t, "respawn.out")

	_, err := s.RegisterEnclosing(in)
	require.NoError(t, err)
	parent, err := s.SpawnChild(domain.RootID, "sh", []string{"-c", "head -n 1; exit 1"})
	require.NoError(t, err)
	child, err := s.SpawnChild(parent, "sh", []string{"-c", `cat >> "$1"`, "sh", file})
	require.NoError(t, err)
	s.Ready()

	before, ok := s.Node(parent)
	require.True(t, ok)
	childBefore, ok := s.Node(child)
	require.True(t, ok)

	_, err = inW.Write([]byte("one\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		n, ok := s.Node(parent)
		return ok && n.Restarts == 1 && n.State == domain.NodeStateRunning
	}, waitFor, tick)
	assert.Eventually(t, func() bool { return readFile(t, file) == "one\n" }, waitFor, tick)

	after, _ := s.Node(parent)
	assert.Equal(t, before.ID, after.ID, "logical node survives the respawn")
	assert.NotEqual(t, before.PID, after.PID)
	assert.Equal(t, []domain.NodeID{child}, after.Children)

	// The replacement now feeds the same, untouched child.
	_, err = inW.Write([]byte("two\n"))
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return readFile(t, file) == "one\ntwo\n" }, waitFor, tick)

	childAfter, ok := s.Node(child)
	require.True(t, ok)
	assert.Equal(t, childBefore.PID, childAfter.PID)
	assert.Zero(t, childAfter.Restarts)
}

func TestSupervisor_KeepAliveFalseTerminatesSubtree(t *testing.T) {
	rec := &recorder{}
	s, _ := newTestSupervisor(t, rec)
	in, inW := stdinPipe(t)

	_, err := s.RegisterEnclosing(in)
	require.NoError(t, err)
	stage, err := s.SpawnChild(domain.RootID, "sh", []string{"-c", "read line; exit 1"}, WithKeepAlive(false))
	require.NoError(t, err)
	grand, err := s.SpawnChild(stage, "sleep", []string{"30"})
	require.NoError(t, err)
	s.Ready()

	grandInfo, _ := s.Node(grand)

	_, err = inW.Write([]byte("go\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, stageLeft := s.Node(stage)
		_, grandLeft := s.Node(grand)
		return !stageLeft && !grandLeft
	}, waitFor, tick)

	assert.Zero(t, rec.respawns.Load())
	assert.Zero(t, s.Live())
	assert.False(t, processAlive(grandInfo.PID))
	assert.Empty(t, s.Master().Children)
	assert.False(t, s.ShuttingDown(), "a retired stage does not stop the pipeline")
}

func TestSupervisor_ShutdownTerminatesTree(t *testing.T) {
	rec := &recorder{}
	s, _ := newTestSupervisor(t, rec)
	in, _ := stdinPipe(t)

	_, err := s.RegisterEnclosing(in)
	require.NoError(t, err)
	a, err := s.SpawnChild(domain.RootID, "sleep", []string{"30"})
	require.NoError(t, err)
	b, err := s.SpawnChild(domain.RootID, "sh", []string{"-c", `trap "exit 1" TERM; while :; do sleep 0.05; done`})
	require.NoError(t, err)
	c, err := s.SpawnChild(a, "sleep", []string{"30"})
	require.NoError(t, err)
	s.Ready()

	var pids []int
	for _, id := range []domain.NodeID{a, b, c} {
		n, ok := s.Node(id)
		require.True(t, ok)
		pids = append(pids, n.PID)
	}

	s.Shutdown()
	s.Shutdown()
	assert.Equal(t, 0, waitDone(t, s))

	assert.True(t, s.ShuttingDown())
	assert.Zero(t, rec.respawns.Load(), "exits during shutdown are final")
	assert.Zero(t, rec.nonFinal.Load())
	assert.Zero(t, s.Live())
	for _, pid := range pids {
		assert.False(t, processAlive(pid), "pid %d still running", pid)
	}

	_, err = s.SpawnChild(domain.RootID, "sleep", []string{"30"})
	assert.ErrorIs(t, err, domain.ErrShuttingDown)
}

func TestSupervisor_KillTimeoutEscalates(t *testing.T) {
	rec := &recorder{}
	s, _ := newTestSupervisor(t, rec, WithKillTimeout(300*time.Millisecond))
	in, _ := stdinPipe(t)

	_, err := s.RegisterEnclosing(in)
	require.NoError(t, err)
	_, err = s.SpawnChild(domain.RootID, "sh", []string{"-c", `trap "" TERM; while :; do sleep 0.05; done`})
	require.NoError(t, err)
	s.Ready()

	start := time.Now()
	s.Shutdown()
	waitDone(t, s)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Zero(t, rec.respawns.Load())
}

func TestSupervisor_SecondShutdownSkipsDrain(t *testing.T) {
	rec := &recorder{}
	s, _ := newTestSupervisor(t, rec, WithDrainTimeout(time.Minute))
	in, _ := stdinPipe(t)

	_, err := s.RegisterEnclosing(in)
	require.NoError(t, err)
	_, err = s.SpawnChild(domain.RootID, "sleep", []string{"30"})
	require.NoError(t, err)
	s.Ready()

	s.Shutdown()
	select {
	case <-s.Done():
		t.Fatal("sleep ignores end-of-input, drain should still be pending")
	case <-time.After(200 * time.Millisecond):
	}

	s.Shutdown()
	waitDone(t, s)
}

func TestSupervisor_MasterCrashRespawnsSameCommand(t *testing.T) {
	rec := &recorder{}
	s, out := newTestSupervisor(t, rec)
	args := []string{"-c", "echo tick; exit 3"}

	_, err := s.SpawnMaster("sh", args)
	require.NoError(t, err)
	s.Ready()

	require.Eventually(t, func() bool { return rec.respawns.Load() >= 2 }, waitFor, tick)

	ev := rec.lastRespawn()
	assert.True(t, ev.Master)
	assert.Equal(t, "sh", ev.Command)
	assert.Equal(t, args, ev.Args)
	assert.Eventually(t, func() bool { return strings.Contains(out.String(), "tick\ntick\n") }, waitFor, tick)
	assert.False(t, s.ShuttingDown())

	s.Shutdown()
	assert.Equal(t, 0, waitDone(t, s))
}

func TestSupervisor_MasterTerminatedBySignal(t *testing.T) {
	rec := &recorder{}
	s, _ := newTestSupervisor(t, rec)

	_, err := s.SpawnMaster("sleep", []string{"30"})
	require.NoError(t, err)
	stage, err := s.SpawnChild(domain.RootID, "sleep", []string{"30"})
	require.NoError(t, err)
	s.Ready()

	stageInfo, _ := s.Node(stage)
	require.NoError(t, syscall.Kill(s.Master().PID, syscall.SIGTERM))

	assert.Equal(t, 0, waitDone(t, s))
	assert.Zero(t, rec.respawns.Load())
	assert.False(t, processAlive(stageInfo.PID))
	assert.Equal(t, domain.NodeStateExited, s.Master().State)
}

func TestSupervisor_MasterExitCodeIsProgramExitCode(t *testing.T) {
	rec := &recorder{}
	s, _ := newTestSupervisor(t, rec)

	_, err := s.SpawnMaster("sh", []string{"-c", "kill -KILL $$"})
	require.NoError(t, err)
	s.Ready()

	assert.Equal(t, 0, waitDone(t, s), "a master ended by SIGKILL is an intentional stop")
	assert.Zero(t, rec.respawns.Load())
}

func TestSupervisor_SpawnChildErrors(t *testing.T) {
	rec := &recorder{}
	s, _ := newTestSupervisor(t, rec)

	_, err := s.SpawnChild(domain.NodeID(42), "sleep", []string{"1"})
	assert.ErrorIs(t, err, domain.ErrUnknownNode)

	_, err = s.SpawnChild(domain.RootID, "/nonexistent/manifold-stage", nil)
	assert.Error(t, err)
	assert.Empty(t, s.Master().Children)
	assert.Zero(t, rec.spawns.Load())
}

func TestSupervisor_ShutdownBeforeMaster(t *testing.T) {
	s := New(WithOutput(&syncBuffer{}))
	s.Shutdown()
	assert.Equal(t, 0, waitDone(t, s))

	_, err := s.SpawnMaster("sleep", []string{"1"})
	assert.ErrorIs(t, err, domain.ErrShuttingDown)
}

func TestSupervisor_Tree(t *testing.T) {
	rec := &recorder{}
	s, _ := newTestSupervisor(t, rec)
	in, _ := stdinPipe(t)

	_, err := s.RegisterEnclosing(in)
	require.NoError(t, err)
	a, err := s.SpawnChild(domain.RootID, "sleep", []string{"30"})
	require.NoError(t, err)
	b, err := s.SpawnChild(domain.RootID, "sleep", []string{"30"}, WithKeepAlive(false))
	require.NoError(t, err)
	c, err := s.SpawnChild(a, "sleep", []string{"30"})
	require.NoError(t, err)
	s.Ready()

	tree := s.Tree()
	assert.True(t, tree.IsMaster())
	require.Len(t, tree.Stages, 2)
	assert.Equal(t, a, tree.Stages[0].ID)
	assert.Equal(t, b, tree.Stages[1].ID)
	assert.False(t, tree.Stages[1].KeepAlive)
	require.Len(t, tree.Stages[0].Stages, 1)
	assert.Equal(t, c, tree.Stages[0].Stages[0].ID)
	assert.Equal(t, a, tree.Stages[0].Stages[0].Parent)

	nodes := s.Nodes()
	require.Len(t, nodes, 4)
	assert.Equal(t, []domain.NodeID{domain.RootID, a, b, c}, []domain.NodeID{nodes[0].ID, nodes[1].ID, nodes[2].ID, nodes[3].ID})
	assert.Equal(t, 3, s.Live())
}
